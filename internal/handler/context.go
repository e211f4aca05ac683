package handler

import (
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/session"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all gameplay handlers.
type Deps struct {
	Log   *zap.Logger
	Voice VoiceSink // nil discards voice
}

// RegisterAll installs the gameplay handlers on a session for its role.
// RegisterMessages must already have run on the session's protocol.
func RegisterAll(s *session.Context, deps *Deps) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Voice == nil {
		deps.Voice = DiscardVoice{}
	}

	s.Handle(protocol.TagVoiceData, func(s *session.Context, in *session.Inbound) {
		HandleVoiceData(s, in, deps)
	})

	switch s.Role() {
	case protocol.RoleHost:
		s.Handle(TagPickUpItemRequest, func(s *session.Context, in *session.Inbound) {
			HandlePickUpRequest(s, in, deps)
		})
	case protocol.RoleClient:
		s.Handle(TagPickUpItemSuccess, func(s *session.Context, in *session.Inbound) {
			HandlePickUpSuccess(s, in, deps)
		})
	}
}
