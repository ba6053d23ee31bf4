package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/matcha-check/internal/capture"
	"github.com/example/matcha-check/internal/imageprocessor"
	"github.com/example/matcha-check/internal/logging"
	"github.com/example/matcha-check/internal/repository"
	"github.com/example/matcha-check/internal/retry"
	"github.com/example/matcha-check/internal/storage"
)

var (
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrAnalysisNotReady  = errors.New("analysis not ready")
	ErrAnalysisDiscarded = errors.New("analysis discarded by retake")
	ErrInvalidScore      = errors.New("invalid user score")
	ErrTextTooLong       = errors.New("text too long")
	ErrForbidden         = errors.New("forbidden")
)

const (
	// MaxTextLength bounds comments and locations, in runes.
	MaxTextLength = 500

	DefaultPageSize = 24
	MaxPageSize     = 100

	processingTTL = time.Minute
	resultTTL     = 30 * time.Minute
)

// RatingRepository defines the persistence operations needed by the use case.
type RatingRepository interface {
	SaveRating(ctx context.Context, record *repository.RatingRecord) error
	FindByID(ctx context.Context, id uint) (*repository.RatingRecord, error)
	ListRatings(ctx context.Context, limit, offset int) ([]*repository.RatingRecord, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash string, excludeID uint) ([]*repository.RatingRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ImageStore persists uploaded photos and returns their public URL.
type ImageStore interface {
	Save(ctx context.Context, hash string, data []byte) (string, error)
}

// RatingInput is what the user adds to a finished analysis.
type RatingInput struct {
	AnalysisID string
	UserScore  float64
	Comment    string
	Location   string
}

// DuplicateReport lists the user's other ratings of the same photo.
type DuplicateReport struct {
	Rating     *repository.RatingRecord
	Duplicates []*repository.RatingRecord
}

// RatingUseCase encapsulates the analyze, rate and browse flow.
type RatingUseCase struct {
	repo           RatingRepository
	cache          Cache
	processor      imageprocessor.Client
	images         ImageStore
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewRatingUseCase constructs a new use case instance. images may be nil, in
// which case ratings carry no image URL.
func NewRatingUseCase(repo RatingRepository, cache Cache, processor imageprocessor.Client, images ImageStore, logger *zap.Logger) *RatingUseCase {
	policy := retry.DefaultPolicy()
	return &RatingUseCase{
		repo:           repo,
		cache:          cache,
		processor:      processor,
		images:         images,
		logger:         logger.Named("rating_usecase"),
		retryAttempts:  policy.Attempts,
		initialBackoff: policy.InitialBackoff,
		maxBackoff:     policy.MaxBackoff,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// StartCapture opens a session in the scanning step, before a photo is taken.
func (uc *RatingUseCase) StartCapture(ctx context.Context, userID string) (*capture.Session, error) {
	session := capture.NewSession(uuid.NewString(), userID, uc.now())
	if err := session.Start(uc.now()); err != nil {
		return nil, logging.NewOperationError("usecase.start_capture", session.ID, err)
	}
	if err := uc.saveSession(ctx, session, resultTTL, "cache.set.scanning"); err != nil {
		logging.WithOperation(uc.logger, "usecase.start_capture", session.ID).Error("failed to cache session", zap.Error(err))
		return nil, err
	}
	return session, nil
}

// AnalyzeImage runs the matcha analysis for an upload and keeps the finished
// session in the cache until the user rates it or it expires. An empty
// analysisID opens a new session; otherwise the photo is captured into the
// caller's scanning or idle session.
func (uc *RatingUseCase) AnalyzeImage(ctx context.Context, userID, analysisID string, imageBytes []byte) (string, *capture.Session, error) {
	var session *capture.Session
	if analysisID == "" {
		analysisID = uuid.NewString()
		session = capture.NewSession(analysisID, userID, uc.now())
	} else {
		existing, err := uc.GetAnalysis(ctx, userID, analysisID)
		if err != nil {
			return "", nil, err
		}
		session = existing
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_image", analysisID)

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])

	if err := session.Capture(hashHex, uc.now()); err != nil {
		return "", nil, logging.NewOperationError("usecase.capture", analysisID, err)
	}
	processing, err := uc.saveSessionRaw(ctx, session, processingTTL, "cache.set.processing")
	if err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	result, err := uc.processor.Analyze(ctx, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.analyze", analysisID, err)
		opLogger.Error("analysis failed", zap.Error(wrapped))
		uc.dropSession(ctx, analysisID)
		return "", nil, wrapped
	}

	imageURL, err := uc.storeImage(ctx, hashHex, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.store_image", analysisID, err)
		opLogger.Error("failed to store image", zap.Error(wrapped))
		uc.dropSession(ctx, analysisID)
		return "", nil, wrapped
	}

	if err := session.Complete(result, imageURL, uc.now()); err != nil {
		return "", nil, logging.NewOperationError("usecase.complete", analysisID, err)
	}
	done, err := json.Marshal(session)
	if err != nil {
		return "", nil, logging.NewOperationError("cache.set.result", analysisID, err)
	}

	// only a session still holding this exact processing state may complete;
	// a retake or expiry in the meantime discards the result
	var swapped bool
	err = uc.withRedisRetry(ctx, analysisID, "cache.set.result", func() error {
		var casErr error
		swapped, casErr = uc.cache.CompareAndSwap(ctx, sessionKey(analysisID), processing, string(done), resultTTL)
		return casErr
	})
	if err != nil {
		opLogger.Error("failed to cache analysis result", zap.Error(err))
		return "", nil, err
	}
	if !swapped {
		opLogger.Info("discarding analysis of retaken capture")
		return "", nil, ErrAnalysisDiscarded
	}

	opLogger.Info("analysis finished",
		zap.Bool("cup_found", result.CupFound),
		zap.Float64("color_score", result.ColorScore),
		zap.String("avg_color", result.AvgColor),
	)
	return analysisID, session, nil
}

// GetAnalysis returns the cached session of an analysis owned by userID.
func (uc *RatingUseCase) GetAnalysis(ctx context.Context, userID, analysisID string) (*capture.Session, error) {
	session, err := uc.loadSession(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}
	return session, nil
}

// Retake abandons an analysis. A result that arrives afterwards is discarded.
func (uc *RatingUseCase) Retake(ctx context.Context, userID, analysisID string) error {
	session, err := uc.GetAnalysis(ctx, userID, analysisID)
	if err != nil {
		return err
	}
	session.Retake(uc.now())
	return uc.saveSession(ctx, session, processingTTL, "cache.set.retake")
}

// SubmitRating stores the user's rating for a finished analysis.
func (uc *RatingUseCase) SubmitRating(ctx context.Context, userID string, input RatingInput) (*repository.RatingRecord, error) {
	session, err := uc.GetAnalysis(ctx, userID, input.AnalysisID)
	if err != nil {
		return nil, err
	}
	if !session.Done() {
		return nil, ErrAnalysisNotReady
	}

	result := session.Result
	if err := ValidateUserScore(input.UserScore, result.MaxScore); err != nil {
		return nil, err
	}
	comment, err := optionalText("comment", input.Comment)
	if err != nil {
		return nil, err
	}
	location, err := optionalText("location", input.Location)
	if err != nil {
		return nil, err
	}

	record := &repository.RatingRecord{
		AnalysisID: session.ID,
		UserID:     userID,
		ImageURL:   session.ImageURL,
		ImageHash:  session.ImageHash,
		AIScore:    result.ColorScore,
		MaxScore:   result.MaxScore,
		UserScore:  input.UserScore,
		Comment:    comment,
		Location:   location,
		CupFound:   result.CupFound,
		AvgColor:   result.AvgColor,
		CreatedAt:  uc.now(),
	}
	if err := uc.repo.SaveRating(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_rating", session.ID, err)
		logging.WithOperation(uc.logger, "usecase.submit_rating", session.ID).Error("failed to persist rating", zap.Error(wrapped))
		return nil, wrapped
	}

	uc.dropSession(ctx, session.ID)
	return record, nil
}

// GetRating loads a single rating.
func (uc *RatingUseCase) GetRating(ctx context.Context, id uint) (*repository.RatingRecord, error) {
	return uc.repo.FindByID(ctx, id)
}

// ListRatings returns a page of the gallery, newest first.
func (uc *RatingUseCase) ListRatings(ctx context.Context, limit, offset int) ([]*repository.RatingRecord, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	offset = max(offset, 0)
	return uc.repo.ListRatings(ctx, limit, offset)
}

// GetDuplicateReport finds the owner's other ratings of the same photo.
func (uc *RatingUseCase) GetDuplicateReport(ctx context.Context, userID string, id uint) (*DuplicateReport, error) {
	record, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrForbidden
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, record.ImageHash, record.ID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Rating:     record,
		Duplicates: duplicates,
	}, nil
}

// ValidateUserScore accepts half-point scores in (0, maxScore].
func ValidateUserScore(score, maxScore float64) error {
	if math.IsNaN(score) || score <= 0 || score > maxScore {
		return fmt.Errorf("%w: %v is outside (0, %v]", ErrInvalidScore, score, maxScore)
	}
	if score*2 != math.Trunc(score*2) {
		return fmt.Errorf("%w: %v is not a multiple of 0.5", ErrInvalidScore, score)
	}
	return nil
}

func optionalText(field, value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(value) > MaxTextLength {
		return nil, fmt.Errorf("%w: %s exceeds %d characters", ErrTextTooLong, field, MaxTextLength)
	}
	return &value, nil
}

func (uc *RatingUseCase) storeImage(ctx context.Context, hash string, data []byte) (string, error) {
	if uc.images == nil {
		return "", nil
	}
	url, err := uc.images.Save(ctx, hash, data)
	if errors.Is(err, storage.ErrUndecodable) {
		// nothing to show in the gallery, the analysis already reported no cup
		return "", nil
	}
	return url, err
}

func sessionKey(analysisID string) string {
	return fmt.Sprintf("analysis:%s", analysisID)
}

func (uc *RatingUseCase) saveSession(ctx context.Context, session *capture.Session, ttl time.Duration, operation string) error {
	_, err := uc.saveSessionRaw(ctx, session, ttl, operation)
	return err
}

// saveSessionRaw caches session and returns the exact value written.
func (uc *RatingUseCase) saveSessionRaw(ctx context.Context, session *capture.Session, ttl time.Duration, operation string) (string, error) {
	serialized, err := json.Marshal(session)
	if err != nil {
		return "", logging.NewOperationError(operation, session.ID, err)
	}
	err = uc.withRedisRetry(ctx, session.ID, operation, func() error {
		return uc.cache.Set(ctx, sessionKey(session.ID), string(serialized), ttl)
	})
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}

func (uc *RatingUseCase) loadSession(ctx context.Context, analysisID string) (*capture.Session, error) {
	cached, err := uc.withRedisGet(ctx, analysisID, "cache.get.session", sessionKey(analysisID))
	if errors.Is(err, redis.Nil) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}

	var session capture.Session
	if err := json.Unmarshal([]byte(cached), &session); err != nil {
		logging.WithOperation(uc.logger, "usecase.load_session", analysisID).Warn("failed to decode cached session", zap.Error(err))
		return nil, ErrAnalysisNotFound
	}
	return &session, nil
}

func (uc *RatingUseCase) dropSession(ctx context.Context, analysisID string) {
	err := uc.withRedisRetry(ctx, analysisID, "cache.del.session", func() error {
		return uc.cache.Del(ctx, sessionKey(analysisID))
	})
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.drop_session", analysisID).Warn("failed to drop session", zap.Error(err))
	}
}

func (uc *RatingUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	policy := retry.Policy{
		Attempts:       uc.retryAttempts,
		InitialBackoff: uc.initialBackoff,
		MaxBackoff:     uc.maxBackoff,
	}
	return retry.Do(ctx, uc.logger, policy, operation, requestID, fn)
}

func (uc *RatingUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var (
		result string
		miss   bool
	)
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	if miss {
		return "", redis.Nil
	}
	return result, nil
}
