package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/clara-assistant/clara/internal/adapters/webhook"
	"github.com/clara-assistant/clara/internal/conversation"
)

type stubTwilioValidator struct {
	err error
}

func (v *stubTwilioValidator) Validate(requestURL string, form url.Values, signature string) error {
	return v.err
}

type stubCalendlyValidator struct {
	err error
}

func (v *stubCalendlyValidator) Validate(body []byte, header string) error {
	return v.err
}

func newTestIngestor(msgs *fakeMessageRepo, events *fakeEventRepo) *conversation.Ingestor {
	ing := conversation.NewIngestor(msgs, events, &fakeExecutor{}, nil, nil)
	ing.Reply = false
	return ing
}

func whatsappForm(sid, body string) *strings.Reader {
	form := url.Values{}
	form.Set("MessageSid", sid)
	form.Set("From", "whatsapp:+34600000001")
	form.Set("To", "whatsapp:+14155238886")
	form.Set("Body", body)
	return strings.NewReader(form.Encode())
}

func postWhatsApp(h *WebhookHandler, sid, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", whatsappForm(sid, body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.WhatsApp(rec, req)
	return rec
}

func TestWebhookHandler_WhatsApp_Accepted(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	ing := newTestIngestor(msgs, events)
	h := NewWebhookHandler(ing, events, nil, nil)

	rec := postWhatsApp(h, "SM100", "hola, ¿cómo estás?")
	ing.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Errorf("expected accepted, got %v", resp["status"])
	}
	if _, ok := msgs.messages["SM100"]; !ok {
		t.Error("message was not stored")
	}
}

func TestWebhookHandler_WhatsApp_DuplicateIsIdempotent(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	ing := newTestIngestor(msgs, events)
	h := NewWebhookHandler(ing, events, nil, nil)

	postWhatsApp(h, "SM200", "cena mañana a las 21")
	rec := postWhatsApp(h, "SM200", "cena mañana a las 21")
	ing.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp["status"] != "duplicate" {
		t.Errorf("expected duplicate, got %v", resp["status"])
	}
}

func TestWebhookHandler_WhatsApp_MissingFields(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, nil, nil)

	form := url.Values{}
	form.Set("From", "whatsapp:+34600000001")
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.WhatsApp(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_WhatsApp_SignatureRejected(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	twilio := &stubTwilioValidator{err: errors.New("signature mismatch")}
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, twilio, nil)

	rec := postWhatsApp(h, "SM300", "hola")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(msgs.messages) != 0 {
		t.Error("rejected message must not be stored")
	}
}

// twilioSign computes the X-Twilio-Signature value for a form post:
// HMAC-SHA1 over the URL followed by the sorted key+value pairs.
func twilioSign(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(requestURL))
	for _, k := range keys {
		mac.Write([]byte(k + form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_WhatsApp_RealValidatorAcceptsSignedRequest(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	ing := newTestIngestor(msgs, events)

	const authToken = "twilio-test-token"
	h := NewWebhookHandler(ing, events, webhook.NewTwilioValidator(authToken), nil)

	form := url.Values{}
	form.Set("MessageSid", "SM400")
	form.Set("From", "whatsapp:+34600000001")
	form.Set("To", "whatsapp:+14155238886")
	form.Set("Body", "cena el jueves a las 13")

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilioSign(authToken, "http://example.com/whatsapp/webhook", form))

	rec := httptest.NewRecorder()
	h.WhatsApp(rec, req)
	ing.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a correctly signed request, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := msgs.messages["SM400"]; !ok {
		t.Error("signed message was not stored")
	}
}

func TestWebhookHandler_WhatsApp_RealValidatorRejectsBadSignature(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, webhook.NewTwilioValidator("twilio-test-token"), nil)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", whatsappForm("SM401", "hola"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "not-a-valid-signature")

	rec := httptest.NewRecorder()
	h.WhatsApp(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(msgs.messages) != 0 {
		t.Error("message with bad signature must not be stored")
	}
}

func postCalendly(h *WebhookHandler, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calendly/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Calendly(rec, req)
	return rec
}

func TestWebhookHandler_Calendly_CreatedUpserts(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, nil, nil)

	payload := `{
		"event": "invitee.created",
		"payload": {
			"uri": "https://api.calendly.com/scheduled_events/ABC",
			"name": "Intro call",
			"status": "active",
			"start_time": "2026-09-01T10:00:00Z",
			"end_time": "2026-09-01T10:30:00Z"
		}
	}`
	rec := postCalendly(h, payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, ok := events.calendar["calendly:https://api.calendly.com/scheduled_events/ABC"]
	if !ok {
		t.Fatal("booking was not mirrored into the calendar store")
	}
	if stored.Status != "confirmed" || stored.Title != "Intro call" {
		t.Errorf("unexpected stored event: %+v", stored)
	}
}

func TestWebhookHandler_Calendly_CanceledUpdatesStatus(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, nil, nil)

	payload := `{
		"event": "invitee.canceled",
		"payload": {
			"uri": "https://api.calendly.com/scheduled_events/ABC",
			"name": "Intro call",
			"start_time": "2026-09-01T10:00:00Z",
			"end_time": "2026-09-01T10:30:00Z"
		}
	}`
	rec := postCalendly(h, payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stored := events.calendar["calendly:https://api.calendly.com/scheduled_events/ABC"]
	if stored == nil || stored.Status != "canceled" {
		t.Errorf("expected canceled status, got %+v", stored)
	}
}

func TestWebhookHandler_Calendly_MissingURI(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, nil, nil)

	rec := postCalendly(h, `{"event": "invitee.created", "payload": {}}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_Calendly_SignatureRejected(t *testing.T) {
	msgs := newFakeMessageRepo()
	events := newFakeEventRepo()
	calendly := &stubCalendlyValidator{err: errors.New("signature mismatch")}
	h := NewWebhookHandler(newTestIngestor(msgs, events), events, nil, calendly)

	rec := postCalendly(h, `{"event": "invitee.created", "payload": {"uri": "x"}}`)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if len(events.calendar) != 0 {
		t.Error("rejected callback must not be stored")
	}
}
