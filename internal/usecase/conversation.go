package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"insurance-bot/internal/domain"
)

const (
	commandStart  = "start"
	commandCancel = "cancel"
)

// ConversationService drives one chat session through the insurance flow.
// Inputs for the same session are handled one at a time.
type ConversationService struct {
	transport Transport
	extractor Extractor
	policy    PolicyWriter
	store     SessionStore
	files     Files
	archive   Archiver
	log       *slog.Logger
	locks     *sessionLocks
}

type ServiceOption func(*ConversationService)

// WithArchive keeps every raw OCR payload through a.
func WithArchive(a Archiver) ServiceOption {
	return func(s *ConversationService) {
		s.archive = a
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ConversationService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewConversationService(t Transport, x Extractor, p PolicyWriter, st SessionStore, f Files, opts ...ServiceOption) (*ConversationService, error) {
	if t == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	if x == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: policy writer must not be nil")
	}
	if st == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if f == nil {
		return nil, errors.New("usecase: files must not be nil")
	}
	s := &ConversationService{
		transport: t,
		extractor: x,
		policy:    p,
		store:     st,
		files:     f,
		log:       slog.Default(),
		locks:     newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle processes one input. It returns an error only when the session
// store fails; every other failure becomes a transition plus a message.
func (s *ConversationService) Handle(ctx context.Context, in domain.Input) error {
	if strings.TrimSpace(in.SessionID) == "" {
		return newError(ErrorInternal, "missing_session_id", nil)
	}
	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	if in.UpdateID > 0 {
		fresh, err := s.store.Claim(ctx, in.SessionID, in.UpdateID)
		if err != nil {
			return newError(ErrorInternal, "update_claim_error", err)
		}
		if !fresh {
			s.log.Info("conversation.update.duplicate", "session_id", in.SessionID, "update_id", in.UpdateID)
			return nil
		}
	}

	start := time.Now()
	if in.Kind == domain.InputButton {
		if err := s.transport.AnswerCallback(ctx, in.CallbackID); err != nil {
			s.log.Warn("conversation.callback.answer_failed", "session_id", in.SessionID, "err", err)
		}
	}

	rec, err := s.store.Get(ctx, in.SessionID)
	if err != nil {
		return newError(ErrorInternal, "session_load_error", err)
	}
	if rec == nil {
		rec = domain.NewConversationRecord(in.SessionID, in.ChatID)
	}
	if in.ChatID != 0 {
		rec.ChatID = in.ChatID
	}

	from := rec.Stage
	s.step(ctx, rec, in)
	s.log.Info("conversation.transition",
		"session_id", rec.SessionID,
		"input", in.Kind.String(),
		"from", string(from),
		"to", string(rec.Stage),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if rec.Stage == domain.StageEnd {
		if err := s.store.Delete(ctx, rec.SessionID); err != nil {
			return newError(ErrorInternal, "session_delete_error", err)
		}
		return nil
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return newError(ErrorInternal, "session_save_error", err)
	}
	return nil
}

func (s *ConversationService) step(ctx context.Context, rec *domain.ConversationRecord, in domain.Input) {
	switch {
	case in.Kind == domain.InputCommand && in.Command == commandStart:
		s.restart(ctx, rec, "")
		return
	case in.Kind == domain.InputCommand && in.Command == commandCancel:
		s.send(ctx, rec, msgCancelled, restartKeyboard())
		rec.Reset()
		rec.Stage = domain.StageEnd
		return
	case in.Kind == domain.InputButton && in.Action == domain.ActionRestart:
		s.restart(ctx, rec, msgRestarting)
		return
	case in.Kind == domain.InputButton && in.Action == domain.ActionBack:
		if rec.Stage == domain.StageStart || rec.Stage == domain.StageEnd {
			break
		}
		s.enter(ctx, rec, backTarget(rec), "")
		return
	}

	switch rec.Stage {
	case domain.StageAwaitingIdentityPhoto:
		if in.Kind == domain.InputPhoto {
			s.identityPhoto(ctx, rec, in)
			return
		}
	case domain.StageAwaitingVehiclePhoto1, domain.StageAwaitingVehiclePhoto2:
		if in.Kind == domain.InputPhoto {
			s.vehiclePhoto(ctx, rec, in)
			return
		}
	case domain.StageAwaitingManualIdentity:
		if in.Kind == domain.InputText {
			s.manualIdentity(ctx, rec, in.Text)
			return
		}
	case domain.StageAwaitingManualVehicle:
		if in.Kind == domain.InputText {
			s.manualVehicle(ctx, rec, in.Text)
			return
		}
	case domain.StageAwaitingIdentityConfirm:
		switch s.action(in) {
		case domain.ActionConfirm:
			s.enter(ctx, rec, domain.StageAwaitingVehiclePhoto1, msgIdentityConfirmed)
			return
		case domain.ActionEdit:
			s.send(ctx, rec, msgEditIdentity, nil)
			s.enter(ctx, rec, domain.StageAwaitingManualIdentity, "")
			return
		}
	case domain.StageAwaitingVehicleConfirm:
		switch s.action(in) {
		case domain.ActionConfirm:
			if rec.Identity != nil && rec.Vehicle != nil {
				rec.Identity.LinkedVehicleDocumentNumber = rec.Vehicle.RegistrationNumber
			}
			s.enter(ctx, rec, domain.StageAwaitingAgreement, "")
			return
		case domain.ActionEdit:
			s.send(ctx, rec, msgEditVehicle, nil)
			s.enter(ctx, rec, domain.StageAwaitingManualVehicle, "")
			return
		}
	case domain.StageAwaitingAgreement:
		switch s.action(in) {
		case domain.ActionAgree:
			s.issuePolicy(ctx, rec)
			return
		case domain.ActionDecline:
			s.send(ctx, rec, msgDeclined, restartKeyboard())
			rec.Stage = domain.StageEnd
			return
		}
	}

	s.send(ctx, rec, hint(rec.Stage), nil)
}

func (s *ConversationService) action(in domain.Input) string {
	if in.Kind != domain.InputButton {
		return ""
	}
	return in.Action
}

// restart clears the record and greets the user again.
func (s *ConversationService) restart(ctx context.Context, rec *domain.ConversationRecord, lead string) {
	rec.Reset()
	if lead != "" {
		s.send(ctx, rec, lead, nil)
	}
	rec.Stage = domain.StageAwaitingIdentityPhoto
	s.send(ctx, rec, msgGreeting, restartKeyboard())
}

// enter moves rec to stage and shows the stage prompt, optionally led by a
// status line.
func (s *ConversationService) enter(ctx context.Context, rec *domain.ConversationRecord, stage domain.Stage, lead string) {
	rec.Stage = stage
	text, keyboard := prompt(rec, stage)
	if lead != "" {
		text = lead + "\n\n" + text
	}
	s.send(ctx, rec, text, keyboard)
}

func (s *ConversationService) send(ctx context.Context, rec *domain.ConversationRecord, text string, keyboard [][]domain.Button) {
	if err := s.transport.SendText(ctx, rec.ChatID, text, keyboard); err != nil {
		s.log.Error("conversation.send.failed", "session_id", rec.SessionID, "stage", string(rec.Stage), "err", err)
	}
}

func (s *ConversationService) identityPhoto(ctx context.Context, rec *domain.ConversationRecord, in domain.Input) {
	s.send(ctx, rec, msgRecognizingIdentity, nil)
	ext, uerr := s.capture(ctx, rec, in.PhotoID, domain.DocumentIdentity, "passport")
	if uerr != nil {
		s.extractionFailed(ctx, rec, domain.DocumentIdentity, uerr)
		return
	}
	rec.Identity = ext.Identity
	s.enter(ctx, rec, domain.StageAwaitingIdentityConfirm, "")
}

func (s *ConversationService) vehiclePhoto(ctx context.Context, rec *domain.ConversationRecord, in domain.Input) {
	firstPass := rec.Stage == domain.StageAwaitingVehiclePhoto1
	notice, prefix := msgRecognizingVehicle2, "vehicle_2"
	if firstPass {
		notice, prefix = msgRecognizingVehicle1, "vehicle_1"
	}
	s.send(ctx, rec, notice, nil)

	ext, uerr := s.capture(ctx, rec, in.PhotoID, domain.DocumentVehicle, prefix)
	if uerr != nil {
		s.extractionFailed(ctx, rec, domain.DocumentVehicle, uerr)
		return
	}

	if firstPass {
		rec.Vehicle = ext.Vehicle
		s.enter(ctx, rec, domain.StageAwaitingVehiclePhoto2, msgVehiclePage1Done)
		return
	}
	if rec.Vehicle == nil {
		rec.Vehicle = &domain.VehicleData{}
	}
	rec.Vehicle.Merge(ext.Vehicle)
	rec.Vehicle.EnsureOwner(rec.Identity)
	s.enter(ctx, rec, domain.StageAwaitingVehicleConfirm, "")
}

// capture downloads the photo, runs it through the extractor and returns a
// non-empty extraction. The downloaded file is always removed.
func (s *ConversationService) capture(ctx context.Context, rec *domain.ConversationRecord, photoID string, kind domain.DocumentKind, prefix string) (*domain.Extraction, *Error) {
	path := s.files.TempPath(prefix, ".jpg")
	if err := s.transport.DownloadFile(ctx, photoID, path); err != nil {
		_ = s.files.Remove(path)
		return nil, newError(ErrorTransport, "download_failed", err)
	}
	defer func() {
		if err := s.files.Remove(path); err != nil {
			s.log.Warn("conversation.photo.cleanup_failed", "session_id", rec.SessionID, "err", err)
		}
	}()

	jobID, err := s.extractor.Upload(ctx, kind, path)
	if err != nil {
		return nil, classifyExtractionError(err)
	}
	payload, err := s.extractor.AwaitResult(ctx, kind, jobID)
	if err != nil {
		return nil, classifyExtractionError(err)
	}
	if s.archive != nil {
		if _, err := s.archive.Save(jobID, payload); err != nil {
			s.log.Warn("conversation.archive.failed", "session_id", rec.SessionID, "job_id", jobID, "err", err)
		}
	}
	ext, err := s.extractor.Extract(payload, kind)
	if err != nil {
		return nil, classifyExtractionError(err)
	}
	if ext.Empty() {
		return nil, newError(ErrorParse, "empty_result", nil)
	}
	return ext, nil
}

// extractionFailed routes a failed capture: extraction outcomes go to
// manual entry, anything else keeps the user on the same photo stage.
func (s *ConversationService) extractionFailed(ctx context.Context, rec *domain.ConversationRecord, kind domain.DocumentKind, uerr *Error) {
	s.log.Warn("conversation.extraction.failed",
		"session_id", rec.SessionID,
		"stage", string(rec.Stage),
		"code", string(uerr.Code),
		"reason", uerr.Reason,
		"err", uerr.Err,
	)

	vehicle := kind == domain.DocumentVehicle
	if !uerr.fallsBackToManual() {
		msg := msgUnexpectedIdentity
		if vehicle {
			msg = msgUnexpectedVehicle
		}
		s.send(ctx, rec, msg, nil)
		return
	}

	var notice string
	switch {
	case uerr.Code == ErrorUpload && vehicle:
		notice = msgUploadFailedVehicle
	case uerr.Code == ErrorUpload:
		notice = msgUploadFailedIdentity
	case uerr.Code == ErrorTimeout || uerr.Code == ErrorProcessing:
		notice = msgTimedOut
	case vehicle:
		notice = msgNotRecognizedVehicle
	default:
		notice = msgNotRecognizedID
	}
	s.send(ctx, rec, notice, nil)

	if vehicle {
		s.enter(ctx, rec, domain.StageAwaitingManualVehicle, "")
		return
	}
	s.enter(ctx, rec, domain.StageAwaitingManualIdentity, "")
}

func (s *ConversationService) manualIdentity(ctx context.Context, rec *domain.ConversationRecord, text string) {
	id, err := parseManualIdentity(text)
	if err != nil {
		s.log.Info("conversation.manual.rejected", "session_id", rec.SessionID, "stage", string(rec.Stage), "err", err)
		s.send(ctx, rec, msgBadIdentityFormat, nil)
		s.enter(ctx, rec, rec.Stage, "")
		return
	}
	rec.Identity = id
	s.enter(ctx, rec, domain.StageAwaitingVehiclePhoto1, msgIdentitySaved)
}

func (s *ConversationService) manualVehicle(ctx context.Context, rec *domain.ConversationRecord, text string) {
	v, err := parseManualVehicle(text)
	if err != nil {
		s.log.Info("conversation.manual.rejected", "session_id", rec.SessionID, "stage", string(rec.Stage), "err", err)
		s.send(ctx, rec, msgBadVehicleFormat, nil)
		s.enter(ctx, rec, rec.Stage, "")
		return
	}
	v.EnsureOwner(rec.Identity)
	rec.Vehicle = v
	s.enter(ctx, rec, domain.StageAwaitingVehicleConfirm, "")
}

// issuePolicy generates the policy, delivers it as a text file and ends the
// session. The artifact is removed whether or not delivery succeeds.
func (s *ConversationService) issuePolicy(ctx context.Context, rec *domain.ConversationRecord) {
	s.send(ctx, rec, msgGenerating, nil)
	policy := s.policy.Generate(ctx, rec)

	path, err := s.files.WriteText(policyFileName(rec.Identity, policy), policy.Text)
	if err != nil {
		s.log.Error("conversation.policy.write_failed", "session_id", rec.SessionID, "policy", policy.Number, "err", err)
		s.send(ctx, rec, msgPolicyFailed, agreementKeyboard())
		return
	}
	defer func() {
		if err := s.files.Remove(path); err != nil {
			s.log.Warn("conversation.policy.cleanup_failed", "session_id", rec.SessionID, "err", err)
		}
	}()

	s.send(ctx, rec, msgPolicyReady, nil)
	if err := s.transport.SendDocument(ctx, rec.ChatID, path, policyDeliveryName(rec.Identity), msgPolicyCaption); err != nil {
		s.log.Error("conversation.policy.delivery_failed", "session_id", rec.SessionID, "policy", policy.Number, "err", err)
		s.send(ctx, rec, msgPolicyFailed, agreementKeyboard())
		return
	}
	s.log.Info("conversation.policy.issued", "session_id", rec.SessionID, "policy", policy.Number, "generated", policy.Generated)
	rec.Stage = domain.StageEnd
}
