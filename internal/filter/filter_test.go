package filter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"eodl/internal/errs"
)

func TestEmptyPatternSetMatchesEverything(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)

	for _, p := range []string{"", "manifest.safe", "GRANULE/L1C/IMG_DATA/B01.jp2", "a/b/c/d/e/f.txt", ".hidden"} {
		require.True(t, m.Matches(p), "path %q", p)
	}

	m, err = Compile([]string{})
	require.NoError(t, err)
	require.True(t, m.Matches("any/path"))
}

func TestMatchesIsOrAcrossPatterns(t *testing.T) {
	m, err := Compile([]string{"**/*.jp2", "*.xml"})
	require.NoError(t, err)

	require.True(t, m.Matches("MTD/manifest.xml"))
	require.True(t, m.Matches("IMG/band1.jp2"))
	require.True(t, m.Matches("manifest.xml"))
	require.False(t, m.Matches("IMG/band1.tif"))
}

func TestSegmentSemantics(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"GRANULE/*/IMG_DATA/*.jp2", "GRANULE/L1C_T31/IMG_DATA/B02.jp2", true},
		{"GRANULE/*/IMG_DATA/*.jp2", "GRANULE/L1C_T31/QI/IMG_DATA/B02.jp2", false},
		{"GRANULE/**/*.jp2", "GRANULE/L1C_T31/QI/IMG_DATA/B02.jp2", true},
		{"/*.xml", "MTD_MSIL1C.xml", true},
		{"/*.xml", "GRANULE/MTD_TL.xml", false},
		{"measurement/s1a-iw-grd-vv-*.tiff", "measurement/s1a-iw-grd-vv-001.tiff", true},
		{"measurement/s1a-iw-grd-vv-*.tiff", "measurement/s1a-iw-grd-vh-001.tiff", false},
		{"**/B0[2-4].jp2", "IMG/B03.jp2", true},
		{"**/B0[2-4].jp2", "IMG/B08.jp2", false},
		{"**/*.{jp2,xml}", "a/b/c.xml", true},
		{"manifest.safe", "manifest.safe", true},
		{"manifest.safe", "nested/manifest.safe", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s~%s", tt.pattern, tt.path), func(t *testing.T) {
			m, err := Compile([]string{tt.pattern})
			require.NoError(t, err)
			require.Equal(t, tt.want, m.Matches(tt.path))
		})
	}
}

func TestCompileRejectsBadPatterns(t *testing.T) {
	for _, p := range []string{"[unclosed", "**/{a,b", "   ", "/"} {
		_, err := Compile([]string{"*.xml", p})
		require.Error(t, err, "pattern %q", p)
		require.ErrorIs(t, err, errs.Filter)
	}
}

func TestMatcherIsSafeForConcurrentUse(t *testing.T) {
	m, err := Compile([]string{"**/*.jp2"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if !m.Matches(fmt.Sprintf("g%d/b%d.jp2", i, j)) || m.Matches(fmt.Sprintf("g%d/b%d.tif", i, j)) {
					t.Errorf("unexpected match result for worker %d iteration %d", i, j)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
