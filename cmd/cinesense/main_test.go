package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const moviesDat = `1::Interstellar (2014)::Sci-Fi|Drama
2::Toy Story (1995)::Animation|Children's|Comedy
3::Heat (1995)::Action|Crime|Thriller
`

const ratingsDat = `1::1::5::978300760
2::1::4::978302109
1::2::4::978301968
1::3::3::978300275
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCommandPipeline(t *testing.T) {
	for _, key := range []string{"CINESENSE_EMBEDDING_PROVIDER", "CINESENSE_EMBEDDING_MODEL", "CINESENSE_DRIVER", "CINESENSE_DSN"} {
		t.Setenv(key, "")
	}
	data := t.TempDir()
	ml := filepath.Join(data, "ml-1m")
	require.NoError(t, os.MkdirAll(ml, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ml, "movies.dat"), []byte(moviesDat), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ml, "ratings.dat"), []byte(ratingsDat), 0o644))

	common := []string{"--data", data, "--driver", "sqlite", "--dimension", "128"}

	out := execute(t, append([]string{"prepare"}, common...)...)
	assert.Contains(t, out, "Prepared 3 movies and 4 ratings")

	out = execute(t, append([]string{"prepare"}, common...)...)
	assert.Contains(t, out, "already prepared")

	out = execute(t, append([]string{"index"}, common...)...)
	assert.Contains(t, out, "Indexed 3 new movies")

	out = execute(t, append([]string{"index"}, common...)...)
	assert.Contains(t, out, "Indexed 0 new movies")

	out = execute(t, append([]string{"stats"}, common...)...)
	assert.Contains(t, out, "Vectors:   3")

	out = execute(t, append([]string{"recommend", "mind-bending sci-fi like Interstellar", "--genre", "sci-fi", "--min-rating", "4", "--json"}, common...)...)
	assert.Contains(t, out, `"title": "Interstellar (2014)"`)
	assert.Contains(t, out, `"rating": 4.5`)
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, out, "Version=")
}
