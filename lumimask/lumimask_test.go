package lumimask

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const golden = `{
  "315257": [[1, 88], [91, 92]],
  "315259": [[1, 172]],
  "315264": [[32, 261]]
}`

func TestContains(t *testing.T) {
	m, err := Read(strings.NewReader(golden))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Runs())

	for _, tc := range []struct {
		run, lumi int64
		want      bool
	}{
		{315257, 1, true},
		{315257, 88, true},
		{315257, 89, false},
		{315257, 91, true},
		{315257, 93, false},
		{315259, 172, true},
		{315264, 31, false},
		{315264, 32, true},
		{315265, 40, false},
	} {
		assert.Equal(t, tc.want, m.Contains(tc.run, tc.lumi), "run %d lumi %d", tc.run, tc.lumi)
	}
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(`{"abc": [[1, 2]]}`))
	assert.Error(t, err)
	_, err = Read(strings.NewReader(`{"1": [[5, 2]]}`))
	assert.Error(t, err)
	_, err = Read(strings.NewReader(`[1, 2]`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden.json")
	require.NoError(t, os.WriteFile(path, []byte(golden), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.Contains(315259, 100))

	_, err = Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
