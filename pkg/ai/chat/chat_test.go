package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/ai/chat"
	"github.com/vulnscope/vulnscope/pkg/types"
)

func selectModel(m chat.Model, err error) chat.Selector {
	return chat.SelectorFunc(func(context.Context) (chat.Model, error) {
		return m, err
	})
}

func TestConnector_Prompt(t *testing.T) {
	tests := []struct {
		name     string
		selector chat.Selector
		want     string
		wantErr  string
	}{
		{
			name: "chunks are concatenated",
			selector: selectModel(chat.StaticModel{
				ModelName: "gpt-4o",
				Chunks:    []string{"```json\n{\"vulnerabilities\"", ": []}", "\n```"},
			}, nil),
			want: "```json\n{\"vulnerabilities\": []}\n```",
		},
		{
			name: "stream error discards partial text",
			selector: selectModel(chat.StaticModel{
				ModelName: "gpt-4o",
				Chunks:    []string{"{\"vulner"},
				Err:       xerrors.New("connection reset"),
			}, nil),
			wantErr: "stream interrupted",
		},
		{
			name:     "no model",
			selector: selectModel(nil, xerrors.New("no chat models installed")),
			wantErr:  "no model available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chat.New(tt.selector, time.Second)
			got, err := c.Prompt(context.Background(), "review this")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Empty(t, got)

				var ce *types.ConnectorError
				assert.True(t, xerrors.As(err, &ce))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnector_IsAvailable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, chat.New(selectModel(chat.StaticModel{}, nil), 0).IsAvailable(ctx))
	assert.False(t, chat.New(selectModel(nil, xerrors.New("none")), 0).IsAvailable(ctx))
}
