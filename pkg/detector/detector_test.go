package detector_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vulnscope/vulnscope/pkg/detector"
	"github.com/vulnscope/vulnscope/pkg/types"
	"github.com/vulnscope/vulnscope/pkg/workspace"
)

func TestDetector_Scan(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []types.Category
	}{
		{
			name:   "eval",
			source: `eval(userInput)`,
			want:   []types.Category{types.CategoryDynamicCode},
		},
		{
			name:   "secret and insecure random on one line",
			source: `const token = "abcdefgh1234" + Math.random();`,
			want:   []types.Category{types.CategoryHardcodedSecret, types.CategoryInsecureRandom},
		},
		{
			name:   "repeated category on one line",
			source: `eval(a); eval(b);`,
			want:   []types.Category{types.CategoryDynamicCode},
		},
		{
			name:   "template literal query",
			source: "db.query(`SELECT * FROM users WHERE id = ${id}`)",
			want:   []types.Category{types.CategorySQLInjection},
		},
		{
			name:   "innerHTML from variable",
			source: "el.innerHTML = userHtml;\n",
			want:   []types.Category{types.CategoryXSS},
		},
		{
			name:   "innerHTML from literal",
			source: "el.innerHTML = '<b>static</b>';\n",
		},
		{
			name:   "command concatenation",
			source: `child_process.execSync("ls " + dir)`,
			want:   []types.Category{types.CategoryCommandInjection},
		},
		{
			name:   "path concatenation",
			source: `fs.readFileSync(base + name)`,
			want:   []types.Category{types.CategoryPathTraversal},
		},
		{
			name:   "md5",
			source: `crypto.createHash('md5')`,
			want:   []types.Category{types.CategoryWeakCrypto},
		},
		{
			name:   "function constructor",
			source: `const f = new Function("a", body)`,
			want:   []types.Category{types.CategoryDynamicCode},
		},
		{
			name:   "nested quantifier",
			source: `const re = /(a+)*/`,
			want:   []types.Category{types.CategoryUnsafeRegex},
		},
		{
			name:   "redirect concatenation",
			source: `window.location = base + next`,
			want:   []types.Category{types.CategoryOpenRedirect},
		},
		{
			name:   "short password is ignored",
			source: `password = "short"`,
		},
		{
			name:   "clean code",
			source: "const sum = (a, b) => a * b;\nexport default sum;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.New(nil).Scan("src/app.js", tt.source)
			cats := lo.Map(got, func(f types.StaticFinding, _ int) types.Category { return f.Category })
			sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
			want := tt.want
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if len(want) == 0 {
				assert.Empty(t, cats)
				return
			}
			assert.Equal(t, want, cats)
		})
	}
}

func TestDetector_ScanPosition(t *testing.T) {
	source := "const a = 1;\n\n  const ü = eval(input);\n"
	got := detector.New(nil).Scan("src/app.js", source)
	require.Len(t, got, 1)

	assert.Equal(t, types.StaticFinding{
		Category:       types.CategoryDynamicCode,
		Severity:       types.SeverityCritical,
		File:           "src/app.js",
		Line:           3,
		Column:         13,
		Snippet:        "const ü = eval(input);",
		Message:        "eval executes arbitrary code",
		Recommendation: "Remove eval; parse data with JSON.parse or dispatch through an explicit lookup table.",
	}, got[0])
}

type fakeFiles struct {
	files map[string]string
	clock *clocktesting.FakeClock
}

func (f fakeFiles) FindFiles(_ context.Context, filter workspace.Filter) ([]string, error) {
	return lo.Keys(f.files), nil
}

func (f fakeFiles) ReadFile(_ context.Context, ref string) (string, error) {
	f.clock.Step(time.Second)
	if ref == "broken.js" {
		return "", xerrors.New("permission denied")
	}
	return f.files[ref], nil
}

func TestDetector_Analyze(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	files := fakeFiles{
		clock: fakeClock,
		files: map[string]string{
			"a.js":      "eval(x)",
			"b.py":      "print('ok')",
			"broken.js": "",
		},
	}

	var done []int
	d := detector.New(files,
		detector.WithClock(fakeClock),
		detector.WithProgress(func(n, total int) {
			assert.Equal(t, 3, total)
			done = append(done, n)
		}),
	)
	got, err := d.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, got.FilesAnalyzed)
	assert.Equal(t, 3*time.Second, got.Elapsed)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "a.js", got.Findings[0].File)
	assert.Equal(t, []int{1, 2, 3}, done)
}
