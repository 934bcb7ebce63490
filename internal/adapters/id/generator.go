package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateChunkID() string {
	return g.generate("ch")
}

func (g *Generator) GenerateMessageID() string {
	return g.generate("cm")
}

func (g *Generator) GenerateEventID() string {
	return g.generate("ev")
}

func (g *Generator) GenerateCalendarEventID() string {
	return g.generate("cal")
}

func (g *Generator) GenerateAuditID() string {
	return g.generate("aud")
}

func (g *Generator) GenerateRequestID() string {
	return g.generate("req")
}

func (g *Generator) GenerateVoiceSessionID() string {
	return g.generate("vs")
}
