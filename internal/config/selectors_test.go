package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSelectorsYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
controls:
  up_chip: [".chip-up", "xpath://div[text()='Up']"]
blacklist: ["a.cashier"]
`), 0o644))

	sel, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".chip-up", "xpath://div[text()='Up']"}, sel.Get(UpChip))
	assert.Equal(t, []string{"a.cashier"}, sel.Blacklist)
	// names missing from the file come from defaults
	assert.Equal(t, DefaultSelectors().Get(CashOutButton), sel.Get(CashOutButton))
}

func TestLoadSelectorsTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "selectors.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
blacklist = ["a.casino"]

[controls]
down_chip = [".chip-down"]
`), 0o644))

	sel, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".chip-down"}, sel.Get(DownChip))
	assert.Equal(t, []string{"a.casino"}, sel.Blacklist)
	assert.NotEmpty(t, sel.Get(UpChip))
}

func TestSaveSelectorsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"sel.yaml", "sel.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveSelectors(path, DefaultSelectors()))

			sel, err := LoadSelectors(path)
			require.NoError(t, err)
			assert.Equal(t, DefaultSelectors().Controls, sel.Controls)
		})
	}
}

func TestLoadSelectorsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSelectors(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSelectorStoreNilMeansDefaults(t *testing.T) {
	t.Parallel()

	store := NewSelectorStore(nil)
	assert.Equal(t, DefaultSelectors().Get(UpChip), store.Selectors().Get(UpChip))

	store.Replace(&Selectors{Controls: map[string][]string{UpChip: {"#up"}}})
	assert.Equal(t, []string{"#up"}, store.Selectors().Get(UpChip))
}

func TestSelectorWatcherReloads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, SaveSelectors(path, DefaultSelectors()))

	store := NewSelectorStore(nil)
	w := NewSelectorWatcher(path, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("controls:\n  up_chip: [\"#hot\"]\n"), 0o644))

	assert.Eventually(t, func() bool {
		got := store.Selectors().Get(UpChip)
		return len(got) == 1 && got[0] == "#hot"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
