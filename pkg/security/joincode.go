package security

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const JoinCodeLength = 6

var (
	joinCodeCharset = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	joinCodeRe      = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// GenerateJoinCode returns a random code drawn uniformly from A-Z0-9.
func GenerateJoinCode() (string, error) {
	return generateJoinCode(rand.Reader)
}

func generateJoinCode(src io.Reader) (string, error) {
	result := make([]byte, JoinCodeLength)
	for i := range result {
		idx, err := randIndex(src, len(joinCodeCharset))
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		result[i] = joinCodeCharset[idx]
	}
	return string(result), nil
}

// NormalizeJoinCode trims and upper-cases user input so lookups are case-insensitive.
func NormalizeJoinCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidJoinCode reports whether code is a normalized six character code.
func ValidJoinCode(code string) bool {
	return joinCodeRe.MatchString(code)
}

// randIndex rejects bytes above the largest multiple of max to avoid modulo bias.
func randIndex(src io.Reader, max int) (int, error) {
	if max <= 0 || max > 256 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	limit := 256 - (256 % max)
	buff := make([]byte, 1)
	for {
		if _, err := io.ReadFull(src, buff); err != nil {
			return 0, err
		}
		if int(buff[0]) < limit {
			return int(buff[0]) % max, nil
		}
	}
}
