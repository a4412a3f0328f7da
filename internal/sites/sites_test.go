package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoogle_ResultLinks(t *testing.T) {
	g := DefaultGoogle()
	assert.Equal(t, `#search a[href*="zillow.com"]`, g.ResultLinks("zillow.com"))
}

func TestZillow_CaptchaSelectors(t *testing.T) {
	z := DefaultZillow()
	assert.Equal(t, []string{"#px-captcha", `iframe[title*="challenge"]`}, z.CaptchaSelectors())
	assert.NotEmpty(t, z.ListItem)
	assert.NotEmpty(t, z.NextPage)
}
