package process

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergePATHDeduplicates(t *testing.T) {
	sep := string(os.PathListSeparator)
	primary := strings.Join([]string{"/opt/bin", "/usr/bin"}, sep)
	fallback := strings.Join([]string{"/usr/bin", "/bin"}, sep)

	require.Equal(t, strings.Join([]string{"/opt/bin", "/usr/bin", "/bin"}, sep), mergePATH(primary, fallback))
}

func TestMergePATHSkipsBlankSides(t *testing.T) {
	require.Equal(t, "/usr/bin", mergePATH("", "/usr/bin"))
	require.Equal(t, "/usr/bin", mergePATH("/usr/bin", "  "))
	require.Equal(t, "", mergePATH("", ""))
}

func TestEnvVarValueReturnsLast(t *testing.T) {
	env := []string{"PATH=/bin", "A=1", "PATH=/usr/bin"}
	require.Equal(t, "/usr/bin", envVarValue(env, "PATH"))
}

func TestSetEnvValueReplacesAll(t *testing.T) {
	env := []string{"A=1", "PATH=/bin", "B=2", "PATH=/usr/bin"}
	out := setEnvValue(env, "PATH", "/opt/bin")

	var paths []string
	for _, entry := range out {
		if strings.HasPrefix(entry, "PATH=") {
			paths = append(paths, entry)
		}
	}
	require.Equal(t, []string{"PATH=/opt/bin"}, paths)
}
