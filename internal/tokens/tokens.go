// Package tokens holds the length-based token estimate and the credit
// tiers. The estimate is intentionally rough; billing correctness never
// depends on it.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"
)

// CountTokens estimates tokens as roughly four characters each.
func CountTokens(text string) int64 {
	return int64((len(text) + 3) / 4)
}

var mathPattern = regexp.MustCompile(`(?i)\b(solve|equation|calculate|derivative|integral|limit|matrix|algebra|geometry|calculus|statistics|probability)\b`)

// EstimateOutputTokens predicts response size from the prompt. Math-heavy
// prompts tend to produce longer worked answers.
func EstimateOutputTokens(input string) int64 {
	in := CountTokens(input)
	if mathPattern.MatchString(input) {
		return in * 3
	}
	return in * 2
}

// Free-tier limits for anonymous sessions, in tokens.
const (
	FreeInputLimit  = 500
	FreeOutputLimit = 300
	FreeDailyLimit  = 1000
)

// CreditTiers maps a purchase tier (whole dollars, as sent by the checkout
// flow) to credited tokens.
var CreditTiers = map[string]int64{
	"1":    2_000,
	"10":   30_000,
	"100":  600_000,
	"1000": 10_000_000,
}

// GenerateSessionID returns an opaque session bearer token.
func GenerateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// TodayDate returns the UTC date key used by daily usage rows.
func TodayDate() string {
	return time.Now().UTC().Format("2006-01-02")
}
