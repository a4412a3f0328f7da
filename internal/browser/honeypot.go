package browser

import (
	"strconv"
	"strings"
)

// HoneypotReasons returns why an element looks like a trap placed for bots:
// present in the DOM but not something a person could see or reach. An empty
// result means the element looks safe to interact with.
func HoneypotReasons(t ElementTraits) []string {
	var reasons []string

	if strings.EqualFold(t.Styles["display"], "none") {
		reasons = append(reasons, "Hidden via display:none")
	}
	if v := strings.ToLower(t.Styles["visibility"]); v == "hidden" || v == "collapse" {
		reasons = append(reasons, "Hidden via visibility:hidden")
	}
	if op, err := strconv.ParseFloat(t.Styles["opacity"], 64); err == nil && op < 0.1 {
		reasons = append(reasons, "Hidden via opacity:0")
	}
	if strings.EqualFold(t.Styles["pointerEvents"], "none") {
		reasons = append(reasons, "Pointer events disabled")
	}
	if t.Box.Width < 2 || t.Box.Height < 2 {
		reasons = append(reasons, "Zero or near-zero size")
	}
	if t.Box.X+t.Box.Width < 0 || t.Box.Y+t.Box.Height < -5000 {
		reasons = append(reasons, "Positioned off-screen")
	}
	if t.Attributes["aria-hidden"] == "true" {
		reasons = append(reasons, "Marked as aria-hidden")
	}
	if ti, ok := t.Attributes["tabindex"]; ok {
		if n, err := strconv.Atoi(ti); err == nil && n < 0 {
			reasons = append(reasons, "Not keyboard accessible (negative tabindex)")
		}
	}
	if href := strings.ToLower(t.Attributes["href"]); href != "" {
		for _, bait := range []string{"/trap", "honeypot", "/bot-check", "javascript:void"} {
			if strings.Contains(href, bait) {
				reasons = append(reasons, "Suspicious URL pattern")
				break
			}
		}
	}
	return reasons
}
