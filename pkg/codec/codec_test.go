package codec

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func writeGzip(t *testing.T, path string, content []byte) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestEncodeDecodeString(t *testing.T) {
	blob, err := EncodeString("[unit]\nwu_id: 1\n")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	out, err := DecodeString(blob)
	require.NoError(t, err)
	require.Equal(t, "[unit]\nwu_id: 1\n", out)
}

func TestEncodeFileKinds(t *testing.T) {
	dir := t.TempDir()
	content := []byte("1 2 3\n4 5 6\n")

	plain := filepath.Join(dir, "madx_stdout")
	require.NoError(t, os.WriteFile(plain, content, 0o644))

	zipped := filepath.Join(dir, "fort.10.gz")
	writeGzip(t, zipped, content)

	blob, err := EncodeFile(plain, Compress)
	require.NoError(t, err)
	out, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, content, out)

	blob, err = EncodeFile(zipped, Gzip)
	require.NoError(t, err)
	out, err = Decode(blob)
	require.NoError(t, err)
	require.Equal(t, content, out)

	blob, err = EncodeFile(plain, Raw)
	require.NoError(t, err)
	require.Equal(t, content, blob)

	_, err = EncodeFile(plain, Gzip)
	require.Error(t, err)

	_, err = EncodeFile(plain, Kind("zstd"))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = EncodeFile(filepath.Join(dir, "missing"), Compress)
	require.Error(t, err)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not zlib"))
	require.Error(t, err)
}

func TestOpenSniffsGzip(t *testing.T) {
	dir := t.TempDir()
	content := []byte("a b c\n")

	zipped := filepath.Join(dir, "fort.10")
	writeGzip(t, zipped, content)
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, content, 0o644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	for _, path := range []string{zipped, plain} {
		rc, err := Open(path)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, content, data)
	}

	rc, err := Open(empty)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Empty(t, data)
	require.NoError(t, rc.Close())

	_, err = Open(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
