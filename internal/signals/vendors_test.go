package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectChatWidgets(t *testing.T) {
	html := `<script src="https://widget.intercom.io/widget/abc"></script>
	<a href="https://wa.me/15125550100">WhatsApp</a>`
	assert.Equal(t, []string{"intercom", "whatsapp"}, DetectChatWidgets(html))
}

func TestDetectBookingTools(t *testing.T) {
	html := `<div class="calendly-inline-widget" data-url="https://Calendly.com/acme/30min"></div>`
	assert.Equal(t, []string{"calendly"}, DetectBookingTools(html))
}

func TestDetect_NoneIsEmptySlice(t *testing.T) {
	assert.NotNil(t, DetectChatWidgets(""))
	assert.Empty(t, DetectChatWidgets(""))
	assert.NotNil(t, DetectBookingTools("<p>hi</p>"))
}
