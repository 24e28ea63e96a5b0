package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pagado/internal/models"
	"pagado/internal/repository"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

// CandidateExtractor turns an inbound message into a candidate transaction.
type CandidateExtractor interface {
	Extract(ctx context.Context, userID string, in ExtractionInput, profile *models.UserProfile) (*models.Candidate, error)
}

const busyReplyTimeout = 10 * time.Second

var greetings = map[string]bool{
	"hola": true, "holaa": true, "buenas": true, "buen dia": true, "buen día": true,
	"buenos dias": true, "buenos días": true, "buenas tardes": true, "buenas noches": true,
	"hi": true, "hello": true, "hey": true, "que tal": true, "qué tal": true,
}

func isGreeting(text string) bool {
	return greetings[normalizeKeyword(text)]
}

// ConversationService routes every inbound event through the session
// lifecycle, the capture state machine and the committer.
type ConversationService struct {
	store      *SessionStore
	gate       *AuthorizationGate
	lifecycle  *LifecycleManager
	extractor  CandidateExtractor
	normalizer *Normalizer
	dialog     *DisambiguationController
	committer  *Committer
	messenger  Messenger
	archive    repository.MediaArchive
	logger     *zap.Logger
}

func NewConversationService(
	store *SessionStore,
	gate *AuthorizationGate,
	lifecycle *LifecycleManager,
	extractor CandidateExtractor,
	normalizer *Normalizer,
	dialog *DisambiguationController,
	committer *Committer,
	messenger Messenger,
	archive repository.MediaArchive,
	logger *zap.Logger,
) *ConversationService {
	if archive == nil {
		archive = repository.NopArchive{}
	}
	return &ConversationService{
		store:      store,
		gate:       gate,
		lifecycle:  lifecycle,
		extractor:  extractor,
		normalizer: normalizer,
		dialog:     dialog,
		committer:  committer,
		messenger:  messenger,
		archive:    archive,
		logger:     logger,
	}
}

// HandleEvent processes one inbound message. Failures are answered to the
// user; the returned error is for logging only.
func (s *ConversationService) HandleEvent(ctx context.Context, ev models.Event) error {
	s.lifecycle.Touch(ev.UserID)

	profile, err := s.store.GetProfile(ctx, ev.UserID)
	if err != nil {
		s.reply(ctx, ev.UserID, models.Text(msgProfileFailed))
		return err
	}

	err = s.store.WithSession(ctx, ev.UserID, func(sess *Session) error {
		welcome, proceed := s.lifecycle.Start(sess, ev, profile)
		s.reply(ctx, ev.UserID, welcome...)
		if !proceed {
			return nil
		}
		return s.dispatch(ctx, sess, ev, profile)
	})
	if errors.Is(err, ErrSessionBusy) {
		// ctx is already done here.
		busyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), busyReplyTimeout)
		defer cancel()
		s.reply(busyCtx, ev.UserID, models.Text(msgBusy))
	}
	return err
}

func (s *ConversationService) dispatch(ctx context.Context, sess *Session, ev models.Event, profile *models.UserProfile) error {
	if ev.Modality == models.ModalityText && IsCancelKeyword(ev.Text) {
		if models.IsIdle(sess.State) {
			s.reply(ctx, sess.UserID, mainMenu())
			return nil
		}
		s.logger.Info("Draft cancelled", logger.User(sess.UserID), zap.String("state", sess.State.Name()))
		return s.apply(ctx, sess, s.dialog.Cancel(), profile)
	}

	if ev.Modality.IsMedia() {
		if !models.IsIdle(sess.State) {
			s.reply(ctx, sess.UserID, models.Text(msgPendingDraft))
			return nil
		}
		return s.handleAI(ctx, sess, ev, profile)
	}

	if !models.IsIdle(sess.State) {
		step, err := s.dialog.Advance(sess.UserID, sess.State, Reply{Text: ev.Text, ReplyID: ev.ReplyID}, profile)
		if applyErr := s.apply(ctx, sess, step, profile); applyErr != nil {
			return applyErr
		}
		if errors.Is(err, ErrSelection) || errors.Is(err, ErrValidation) {
			return nil
		}
		return err
	}

	switch ev.ReplyID {
	case MenuAddExpense:
		return s.apply(ctx, sess, s.dialog.StartManual(models.TransactionTypeExpense, profile), profile)
	case MenuAddIncome:
		return s.apply(ctx, sess, s.dialog.StartManual(models.TransactionTypeIncome, profile), profile)
	case MenuLastExpense:
		return s.lastTransaction(ctx, sess.UserID, profile, models.TransactionTypeExpense)
	case MenuLastIncome:
		return s.lastTransaction(ctx, sess.UserID, profile, models.TransactionTypeIncome)
	}

	if sess.Flags.Route == models.RouteAI {
		return s.handleAI(ctx, sess, ev, profile)
	}
	s.reply(ctx, sess.UserID, mainMenu())
	return nil
}

// handleAI runs free text and media through extraction. Only authorized and
// entitled users reach the model.
func (s *ConversationService) handleAI(ctx context.Context, sess *Session, ev models.Event, profile *models.UserProfile) error {
	if err := s.gate.Authorize(sess.UserID, profile); err != nil {
		s.logger.Info("AI request denied",
			logger.User(sess.UserID),
			zap.String("modality", string(ev.Modality)),
			zap.Error(err),
		)
		msg := msgUnauthorized
		if errors.Is(err, ErrNotEntitled) {
			msg = msgPremium
		}
		s.reply(ctx, sess.UserID, models.Text(msg), mainMenu())
		return nil
	}

	if ev.Modality == models.ModalityText && isGreeting(ev.Text) {
		if !sess.Flags.AIWelcomeShown {
			sess.Flags.AIWelcomeShown = true
			s.reply(ctx, sess.UserID, models.Text(aiWelcomeText(profile.FirstName())))
		} else {
			s.reply(ctx, sess.UserID, models.Text(msgGreetingHint))
		}
		return nil
	}

	in := ExtractionInput{Modality: ev.Modality, Text: ev.Text}
	if ev.Modality.IsMedia() {
		media, err := s.messenger.DownloadMedia(ctx, ev.Media)
		if err != nil {
			s.logger.Error("Failed to download media", logger.User(sess.UserID), zap.Error(err))
			s.reply(ctx, sess.UserID, models.Text(msgMediaFailed))
			return err
		}
		if ref, err := s.archive.Archive(ctx, sess.UserID, media); err != nil {
			s.logger.Warn("Failed to archive media", logger.User(sess.UserID), zap.Error(err))
		} else if ref != "" {
			s.logger.Debug("Media archived", logger.User(sess.UserID), zap.String("object", ref))
		}
		in.Media = media
	} else if strings.TrimSpace(ev.Text) == "" {
		s.reply(ctx, sess.UserID, models.Text(msgUnknownIntent))
		return nil
	}

	s.reply(ctx, sess.UserID, models.Text(msgProcessing))

	candidate, err := s.extractor.Extract(ctx, sess.UserID, in, profile)
	if err != nil {
		s.reply(ctx, sess.UserID, models.Text(msgExtractionFailed))
		return err
	}

	switch candidate.Intent {
	case models.IntentQueryLastExpense:
		return s.lastTransaction(ctx, sess.UserID, profile, models.TransactionTypeExpense)
	case models.IntentQueryLastIncome:
		return s.lastTransaction(ctx, sess.UserID, profile, models.TransactionTypeIncome)
	case models.IntentExpense, models.IntentIncome:
	default:
		s.reply(ctx, sess.UserID, models.Text(msgUnknownIntent))
		return nil
	}

	normalized, err := s.normalizer.Normalize(sess.UserID, candidate, profile)
	if err != nil {
		s.reply(ctx, sess.UserID, models.Text(missingFieldsText(models.TransactionType(candidate.Intent))))
		return nil
	}

	return s.apply(ctx, sess, s.dialog.Begin(normalized.Draft, profile), profile)
}

// apply stores the step's state, sends its messages and commits when asked.
// A failed commit keeps the draft in ReadyToCommit for a retry.
func (s *ConversationService) apply(ctx context.Context, sess *Session, step Step, profile *models.UserProfile) error {
	sess.State = step.State
	s.reply(ctx, sess.UserID, step.Messages...)
	if !step.Commit {
		return nil
	}

	draft := models.DraftOf(step.State)
	tx, err := s.committer.Commit(ctx, sess.UserID, draft, profile)
	if err != nil {
		sess.State = models.ReadyToCommit{Draft: draft}
		s.reply(ctx, sess.UserID, models.Text(msgCommitFailed))
		return err
	}

	sess.State = models.Idle{}
	s.reply(ctx, sess.UserID, models.Text(committedText(tx)))
	return nil
}

func (s *ConversationService) lastTransaction(ctx context.Context, userID string, profile *models.UserProfile, txType models.TransactionType) error {
	entry, err := s.committer.LastTransaction(ctx, profile, txType)
	if err != nil {
		s.logger.Error("Failed to query last transaction", logger.User(userID), zap.Error(err))
		s.reply(ctx, userID, models.Text(lastTransactionFailedText(txType)))
		return fmt.Errorf("failed to query last %s: %w", txType, err)
	}
	s.reply(ctx, userID, models.Text(lastTransactionText(txType, entry)))
	return nil
}

// reply sends msgs in order. Delivery errors are logged and do not abort the
// flow; the session state already reflects what was decided.
func (s *ConversationService) reply(ctx context.Context, userID string, msgs ...models.OutgoingMessage) {
	for _, msg := range msgs {
		if err := Send(ctx, s.messenger, userID, msg); err != nil {
			s.logger.Warn("Failed to deliver message", logger.User(userID), zap.Error(err))
		}
	}
}
