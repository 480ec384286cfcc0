package sd2

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFixtures walks testdata/*.sd2, feeding each file through a Reader to
// completion. A file name ending in "_err.sd2" is expected to fail; every
// other file is expected to parse to EndDocument without error.
func TestFixtures(t *testing.T) {
	err := filepath.Walk("./testdata", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".sd2") {
			return nil
		}
		t.Run(info.Name(), func(t *testing.T) {
			data, rerr := os.ReadFile(path)
			require.NoError(t, rerr)

			r := NewReader(NewRuneSource(string(data)))
			_, perr := drain(t, r)

			wantErr := strings.HasSuffix(info.Name(), "_err.sd2")
			if wantErr {
				assert.Error(t, perr, "expected %s to fail to parse", info.Name())
			} else {
				assert.NoError(t, perr, "expected %s to parse cleanly", info.Name())
			}
		})
		return nil
	})
	require.NoError(t, err)
}
