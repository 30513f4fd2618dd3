package signals

import "strings"

type vendor struct {
	name         string
	fingerprints []string
}

var chatVendors = []vendor{
	{"intercom", []string{"widget.intercom.io", "intercomsettings", "js.intercomcdn.com"}},
	{"drift", []string{"js.driftt.com", "drift.load("}},
	{"zendesk", []string{"static.zdassets.com", "zopim"}},
	{"livechat", []string{"cdn.livechatinc.com"}},
	{"tawk_to", []string{"embed.tawk.to"}},
	{"crisp", []string{"client.crisp.chat"}},
	{"hubspot_chat", []string{"js.usemessages.com"}},
	{"olark", []string{"static.olark.com"}},
	{"tidio", []string{"code.tidio.co"}},
	{"freshchat", []string{"wchat.freshchat.com", "fw-cdn.com"}},
	{"podium", []string{"connect.podium.com"}},
	{"birdeye", []string{"birdeye.com/embed"}},
	{"whatsapp", []string{"wa.me/", "api.whatsapp.com/send"}},
	{"messenger", []string{"m.me/", "connect.facebook.net/en_us/sdk/xfbml.customerchat"}},
}

var bookingVendors = []vendor{
	{"calendly", []string{"calendly.com/", "assets.calendly.com"}},
	{"acuity", []string{"acuityscheduling.com", "as.me/"}},
	{"hubspot_meetings", []string{"meetings.hubspot.com"}},
	{"cal_com", []string{"cal.com/"}},
	{"square_appointments", []string{"squareup.com/appointments", "square.site/book"}},
	{"setmore", []string{"setmore.com"}},
	{"simplybook", []string{"simplybook.me"}},
	{"booksy", []string{"booksy.com"}},
	{"vagaro", []string{"vagaro.com"}},
	{"mindbody", []string{"healcode.com", "mindbodyonline.com"}},
	{"opentable", []string{"opentable.com/widget", "opentable.com/r/"}},
	{"resy", []string{"widgets.resy.com"}},
	{"zocdoc", []string{"zocdoc.com"}},
	{"housecall_pro", []string{"housecallpro.com"}},
	{"servicetitan", []string{"scheduler.servicetitan.com", "static.servicetitan.com"}},
	{"jobber", []string{"clienthub.getjobber.com"}},
}

// DetectChatWidgets returns the chat and messaging vendors whose signatures
// appear in rawHTML.
func DetectChatWidgets(rawHTML string) []string {
	return detect(rawHTML, chatVendors)
}

// DetectBookingTools returns the scheduling vendors whose signatures appear
// in rawHTML.
func DetectBookingTools(rawHTML string) []string {
	return detect(rawHTML, bookingVendors)
}

func detect(rawHTML string, vendors []vendor) []string {
	lower := strings.ToLower(rawHTML)
	out := []string{}
	for _, v := range vendors {
		for _, fp := range v.fingerprints {
			if strings.Contains(lower, fp) {
				out = append(out, v.name)
				break
			}
		}
	}
	return out
}
