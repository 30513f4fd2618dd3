package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

const ctaPage = `<html><body>
<header>
  <nav><a href="/about">About</a><a href="/contact" class="btn btn-primary">Contact Us</a></nav>
  <a href="tel:5125550100">(512) 555-0100</a>
</header>
<main>
  <h1>Widgets for everyone</h1>
  <a href="/quote">Get a free quote</a>
  <button type="button">Book Now</button>
  <button type="reset">Clear</button>
  <form action="/lead" method="post">
    <input type="email" name="email">
    <input type="submit" value="Send">
  </form>
  <a href="https://wa.me/15125550100"></a>
</main>
<footer><a href="mailto:hi@acme.test">hi@acme.test</a><a href="/privacy">Privacy</a></footer>
</body></html>`

func TestScanCTAs(t *testing.T) {
	ctas := ScanCTAs(ctaPage)

	byLabel := map[string]CTACandidate{}
	for _, c := range ctas {
		byLabel[c.Label] = c
	}

	require.Contains(t, byLabel, "Contact Us")
	assert.Equal(t, model.CTAButton, byLabel["Contact Us"].Type)
	assert.Equal(t, PlacementNav, byLabel["Contact Us"].Placement)
	assert.Equal(t, "a.btn", byLabel["Contact Us"].Selector)

	require.Contains(t, byLabel, "(512) 555-0100")
	assert.Equal(t, model.CTAPhone, byLabel["(512) 555-0100"].Type)
	assert.Equal(t, PlacementHeader, byLabel["(512) 555-0100"].Placement)

	require.Contains(t, byLabel, "Get a free quote")
	assert.Equal(t, model.CTALink, byLabel["Get a free quote"].Type)
	assert.Equal(t, PlacementBody, byLabel["Get a free quote"].Placement)

	assert.Equal(t, model.CTAButton, byLabel["Book Now"].Type)
	assert.Equal(t, model.CTAForm, byLabel["Send"].Type)
	assert.Equal(t, "/lead", byLabel["Send"].Target)
	assert.Equal(t, model.CTAMessaging, byLabel["message"].Type)
	assert.Equal(t, model.CTAEmail, byLabel["hi@acme.test"].Type)
	assert.Equal(t, PlacementFooter, byLabel["hi@acme.test"].Placement)

	assert.NotContains(t, byLabel, "About")
	assert.NotContains(t, byLabel, "Privacy")
	assert.NotContains(t, byLabel, "Clear")
}

func TestScanCTAs_Dedupes(t *testing.T) {
	html := `<a href="tel:5125550100">Call</a><a href="tel:5125550100">Call</a>`
	assert.Len(t, ScanCTAs(html), 1)
}

func TestScanCTAs_Empty(t *testing.T) {
	ctas := ScanCTAs("")
	assert.NotNil(t, ctas)
	assert.Empty(t, ctas)
}
