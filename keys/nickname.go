package keys

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// MaxNicknameLength follows the DNS label limit.
const MaxNicknameLength = 63

// DefaultNickname replaces nicknames that normalise to nothing.
const DefaultNickname = "anon"

var ErrNicknameTooShort = errors.New("keys: nickname must be at least 1 character")

// ParseNickname normalises text into a nickname: lowercase letters, digits
// and inner hyphens, at most MaxNicknameLength characters. Other characters
// are dropped, so parsing is lossy.
func ParseNickname(text string) (string, error) {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n == MaxNicknameLength {
			break
		}
		if r == '-' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(unicode.ToLower(r))
			n++
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "", ErrNicknameTooShort
	}
	return s, nil
}

// withSuffix appends suffix, truncating text so the result still fits.
func withSuffix(text, suffix string) (string, error) {
	if keep := MaxNicknameLength - len(suffix); len(text) > keep {
		text = text[:keep]
	}
	return ParseNickname(text + suffix)
}

// UniqueNickname returns text as a nickname if it is free, otherwise the
// first free of text2, text3, … Unparseable text falls back to
// DefaultNickname.
func (ks *KeyStore) UniqueNickname(text string) (string, error) {
	nickname, err := ParseNickname(text)
	if err != nil {
		nickname = DefaultNickname
	}
	if !ks.exists(nickname) {
		return nickname, nil
	}
	for i := 2; i < 130; i++ {
		draft, err := withSuffix(nickname, strconv.Itoa(i))
		if err != nil {
			return "", err
		}
		if !ks.exists(draft) {
			return draft, nil
		}
	}
	return "", ErrNicknameTaken
}
