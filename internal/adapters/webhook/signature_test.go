package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"testing"

	"github.com/clara-assistant/clara/internal/domain"
)

func twilioSign(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	payload := requestURL
	for _, key := range keys {
		payload += key + form.Get(key)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioValidate(t *testing.T) {
	const token = "auth-token-123"
	requestURL := "https://clara.example/whatsapp/webhook"
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("Body", "cena mañana")
	form.Set("From", "whatsapp:+34600000001")

	v := NewTwilioValidator(token)

	if err := v.Validate(requestURL, form, twilioSign(token, requestURL, form)); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	err := v.Validate(requestURL, form, twilioSign("wrong-token", requestURL, form))
	if !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("expected mismatch, got %v", err)
	}

	if err := v.Validate(requestURL, form, ""); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("missing signature should be rejected, got %v", err)
	}

	// Tampered body invalidates the signature.
	signature := twilioSign(token, requestURL, form)
	form.Set("Body", "otra cosa")
	if err := v.Validate(requestURL, form, signature); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("tampered form should be rejected, got %v", err)
	}
}

func calendlySign(key, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCalendlyValidate(t *testing.T) {
	const key = "signing-key-456"
	body := []byte(`{"event":"invitee.created"}`)
	header := "t=1712345678,v1=" + calendlySign(key, "1712345678", body)

	v := NewCalendlyValidator(key)

	if err := v.Validate(body, header); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	if err := v.Validate([]byte(`{"event":"tampered"}`), header); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("tampered body should be rejected, got %v", err)
	}

	wrong := "t=1712345678,v1=" + calendlySign("other-key", "1712345678", body)
	if err := v.Validate(body, wrong); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("wrong key should be rejected, got %v", err)
	}

	if err := v.Validate(body, ""); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("missing header should be rejected, got %v", err)
	}
	if err := v.Validate(body, "v1=deadbeef"); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("header without timestamp should be rejected, got %v", err)
	}
}
