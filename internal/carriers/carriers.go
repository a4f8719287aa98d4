// Package carriers holds the closed set of carriers packtrack knows about:
// the detection rules, the 17track carrier codes and the public tracking pages.
package carriers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

type Carrier string

const (
	Unknown      Carrier = ""
	CTTPortugal  Carrier = "CTT_PT"
	ChinaPost    Carrier = "CHINA_POST"
	RoyalMail    Carrier = "ROYAL_MAIL"
	LaPoste      Carrier = "LA_POSTE"
	DeutschePost Carrier = "DEUTSCHE_POST"
	UPS          Carrier = "UPS"
	PostNL       Carrier = "POSTNL"
	USPS         Carrier = "USPS"
	FedEx        Carrier = "FEDEX"
	DHL          Carrier = "DHL"
)

// FallbackTrackingURL is the 17track universal tracking page.
const FallbackTrackingURL = "https://t.17track.net/en#nums=%s"

type info struct {
	name    string
	code    int
	urlTmpl string
}

var table = map[Carrier]info{
	CTTPortugal:  {"CTT Portugal", 2151, "https://www.ctt.pt/feapl_2/app/open/objectSearch/objectSearch.jspx?objects=%s"},
	ChinaPost:    {"China Post", 3011, FallbackTrackingURL},
	RoyalMail:    {"Royal Mail", 1051, "https://www.royalmail.com/track-your-item#/tracking-results/%s"},
	LaPoste:      {"La Poste", 1031, "https://www.laposte.fr/outils/suivre-vos-envois?code=%s"},
	DeutschePost: {"Deutsche Post", 1011, "https://www.deutschepost.de/de/s/sendungsverfolgung.html?piececode=%s"},
	UPS:          {"UPS", 100002, "https://www.ups.com/track?tracknum=%s"},
	PostNL:       {"PostNL", 1071, "https://jouw.postnl.nl/track-and-trace/%s"},
	USPS:         {"USPS", 21051, "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s"},
	FedEx:        {"FedEx", 100003, "https://www.fedex.com/fedextrack/?trknbr=%s"},
	DHL:          {"DHL", 100001, "https://www.dhl.com/en/express/tracking.html?AWB=%s"},
}

type rule struct {
	carrier Carrier
	re      *regexp.Regexp
}

// Order matters: country-suffix and fixed-prefix formats go before the bare
// digit-length ones, otherwise FedEx/DHL would swallow them.
var rules = []rule{
	{CTTPortugal, regexp.MustCompile(`^[A-Z]{2}\d{9}PT$`)},
	{ChinaPost, regexp.MustCompile(`^[A-Z]{2}\d{9}CN$`)},
	{RoyalMail, regexp.MustCompile(`^[A-Z]{2}\d{9}GB$`)},
	{LaPoste, regexp.MustCompile(`^[A-Z]{2}\d{9}FR$`)},
	{DeutschePost, regexp.MustCompile(`^[A-Z]{2}\d{9}DE$`)},
	{UPS, regexp.MustCompile(`^1Z[A-Z0-9]{16}$`)},
	{PostNL, regexp.MustCompile(`^3S[A-Z0-9]{13,15}$`)},
	{USPS, regexp.MustCompile(`^(92|93|94)\d{18,22}$`)},
	{FedEx, regexp.MustCompile(`^\d{12}(\d{3})?(\d{5})?(\d{7})?$`)},
	{DHL, regexp.MustCompile(`^\d{10,11}$`)},
}

// Detect returns the first carrier whose format fully matches the tracking
// number, or Unknown. Only case is normalized.
func Detect(trackingNumber string) Carrier {
	tn := strings.ToUpper(trackingNumber)
	for _, r := range rules {
		if r.re.MatchString(tn) {
			return r.carrier
		}
	}
	return Unknown
}

// Parse resolves a user-supplied carrier (key or display name, any case).
func Parse(s string) (Carrier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown, errors.Wrap(models.ErrUnknownCarrier, "empty carrier")
	}
	for c, inf := range table {
		if strings.EqualFold(string(c), s) || strings.EqualFold(inf.name, s) {
			return c, nil
		}
	}
	return Unknown, errors.Wrapf(models.ErrUnknownCarrier, "%q", s)
}

func All() []Carrier {
	out := make([]Carrier, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.carrier)
	}
	return out
}

// Code is the 17track carrier code; 0 asks the provider to auto-detect.
func (c Carrier) Code() int {
	return table[c].code
}

func (c Carrier) Name() string {
	if inf, ok := table[c]; ok {
		return inf.name
	}
	return "Auto-detect"
}

func (c Carrier) Known() bool {
	_, ok := table[c]
	return ok
}

// TrackingURL builds the carrier's public tracking page for a number.
// Unknown carriers use the 17track universal page.
func (c Carrier) TrackingURL(trackingNumber string) string {
	tmpl := FallbackTrackingURL
	if inf, ok := table[c]; ok {
		tmpl = inf.urlTmpl
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(strings.TrimSpace(trackingNumber)))
}

// ForCode finds the carrier registered under a 17track code.
func ForCode(code int) Carrier {
	if code == 0 {
		return Unknown
	}
	for c, inf := range table {
		if inf.code == code {
			return c
		}
	}
	return Unknown
}
