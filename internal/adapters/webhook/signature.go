package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/clara-assistant/clara/internal/domain"
)

// TwilioValidator checks X-Twilio-Signature headers. The signed string
// is the full request URL followed by every POST parameter name and
// value in lexicographic parameter order, HMAC-SHA1 with the account
// auth token, base64 encoded.
type TwilioValidator struct {
	authToken string
}

func NewTwilioValidator(authToken string) *TwilioValidator {
	return &TwilioValidator{authToken: authToken}
}

func (v *TwilioValidator) Validate(requestURL string, form url.Values, signature string) error {
	if signature == "" {
		return domain.Errorf(domain.KindApplication, "%w: missing signature header", domain.ErrSignatureMismatch)
	}

	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		payload.WriteString(key)
		payload.WriteString(form.Get(key))
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(payload.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.Errorf(domain.KindApplication, "%w: twilio signature invalid", domain.ErrSignatureMismatch)
	}
	return nil
}

// CalendlyValidator checks Calendly-Webhook-Signature headers of the
// form "t=<unix>,v1=<hex hmac>". The signed payload is the timestamp, a
// dot, then the raw request body, HMAC-SHA256 with the signing key.
type CalendlyValidator struct {
	signingKey string
}

func NewCalendlyValidator(signingKey string) *CalendlyValidator {
	return &CalendlyValidator{signingKey: signingKey}
}

func (v *CalendlyValidator) Validate(body []byte, header string) error {
	timestamp, signature, err := parseCalendlyHeader(header)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(v.signingKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.Errorf(domain.KindApplication, "%w: calendly signature invalid", domain.ErrSignatureMismatch)
	}
	return nil
}

func parseCalendlyHeader(header string) (timestamp, signature string, err error) {
	if header == "" {
		return "", "", domain.Errorf(domain.KindApplication, "%w: missing signature header", domain.ErrSignatureMismatch)
	}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return "", "", domain.Errorf(domain.KindApplication, "%w: malformed signature header", domain.ErrSignatureMismatch)
	}
	return timestamp, signature, nil
}
