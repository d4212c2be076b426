package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/models"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Len(t, c.Entities(), 32)

	interval, ok := c.Interval("變形怪首領")
	require.True(t, ok)
	assert.Equal(t, 3*time.Hour+30*time.Minute, interval)

	interval, ok = c.Interval("古代巨人")
	require.True(t, ok)
	assert.Equal(t, 8*time.Hour+30*time.Minute, interval)
}

func TestCatalog_Resolve(t *testing.T) {
	c := Default()

	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "canonical name", input: "85飛龍", want: "85飛龍", found: true},
		{name: "alias", input: "東飛", want: "85飛龍", found: true},
		{name: "ascii alias ignores case", input: "Ef", want: "伊弗利特", found: true},
		{name: "surrounding spaces", input: "  狼王 ", want: "力卡溫", found: true},
		{name: "unknown", input: "哥布林", found: false},
		{name: "empty", input: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := c.Resolve(tt.input)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, e.Name)
			}
		})
	}
}

func TestCatalog_DisplayNameAndMatches(t *testing.T) {
	c := Default()

	assert.Equal(t, "東飛", c.DisplayName("85飛龍"))
	assert.Equal(t, "不死鳥", c.DisplayName("不死鳥"))
	assert.Equal(t, "not-a-boss", c.DisplayName("not-a-boss"))

	assert.True(t, c.Matches("85飛龍", "東"))
	assert.True(t, c.Matches("伊弗利特", "ef"))
	assert.True(t, c.Matches("伊弗利特", ""))
	assert.False(t, c.Matches("伊弗利特", "飛龍"))
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]models.Entity{{Name: "a", Interval: time.Hour}, {Name: "a", Interval: time.Hour}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")

	_, err = New([]models.Entity{{Name: "a"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")

	_, err = New(nil, []models.FixedEntity{{Name: "x", SpawnTimes: []string{"25:00"}}})
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`entities:
  - name: Dragon
    respawn_hours: 2.5
    aliases: [drg]
  - name: Golem
    respawn_hours: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	e, ok := c.Resolve("DRG")
	require.True(t, ok)
	assert.Equal(t, "Dragon", e.Name)
	assert.Equal(t, 150*time.Minute, e.Interval)
	assert.NotEmpty(t, c.Fixed(), "built-in fixed schedule is kept")

	_, err = Parse([]byte("entities: []"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
