package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSideChannel(t *testing.T) {
	stdout := `some command output
=== GITHUB_OUTPUT ===
version=1.2.3
empty_ignored
=== GITHUB_ENV ===
STAGE=prod
=== END ===
trailing noise`

	got := ParseSideChannel(stdout)
	assert.Equal(t, "1.2.3", got["version"])
	assert.Equal(t, "prod", got["STAGE"])
	assert.Len(t, got, 2)
}

func TestParseSideChannel_NoSentinels(t *testing.T) {
	assert.Empty(t, ParseSideChannel("just some plain output\nwith no markers\n"))
}

func TestParseCommandLiteral(t *testing.T) {
	got := ParseCommandLiteral(`echo "ready=true" >> "$GITHUB_OUTPUT"`)
	assert.Equal(t, map[string]string{"ready": "true"}, got)
}

func TestParseCommandLiteral_NoMatch(t *testing.T) {
	assert.Empty(t, ParseCommandLiteral("echo hello"))
}
