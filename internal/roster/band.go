package roster

import "strings"

// Band is the normalized radio band classification.
type Band string

const (
	Band2G      Band = "2g"
	Band5G      Band = "5g"
	Band6G      Band = "6g"
	BandUnknown Band = "unknown"
)

// bandTokens maps substring tokens to bands. Rows are evaluated in
// order within each candidate; 6 GHz tokens come first because "band6"
// must not be swallowed by a later, looser match. The table covers the
// spellings observed across the three vendor backends: explicit
// frequency labels, 802.11 mode strings, and Deco "bandN" values.
var bandTokens = []struct {
	token string
	band  Band
}{
	{"6ghz", Band6G},
	{"6g", Band6G},
	{"11be", Band6G},
	{"band6", Band6G},
	{"6e", Band6G},
	{"5ghz", Band5G},
	{"5g", Band5G},
	{"11ac", Band5G},
	{"11axa", Band5G},
	{"band5", Band5G},
	{"2.4", Band2G},
	{"2_4", Band2G},
	{"2g", Band2G},
	{"11ng", Band2G},
	{"11bgn", Band2G},
	{"band2", Band2G},
}

// ClassifyBand inspects an ordered candidate list of raw band-like
// values (explicit band field first, then radio mode, then SSID) and
// returns the first band any candidate's tokens resolve to. Candidate
// order matters: some vendors encode the band only in the SSID, but an
// explicit band field must always win over an SSID guess.
func ClassifyBand(candidates []string) Band {
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == "" {
			continue
		}
		for _, t := range bandTokens {
			if strings.Contains(lc, t.token) {
				return t.band
			}
		}
	}
	return BandUnknown
}
