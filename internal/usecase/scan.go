package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Eric-Kumenda/Breast-Cancer/internal/classifier"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/imaging"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/logging"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/prediction"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/repository"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/storage"
)

const scanCacheTTL = 5 * time.Minute

// ScanRepository defines the persistence operations needed by the use case.
type ScanRepository interface {
	Insert(ctx context.Context, scan *repository.Scan) error
	FindByID(ctx context.Context, id string) (*repository.Scan, error)
	ListByUser(ctx context.Context, userID string) ([]*repository.Scan, error)
	DeleteByID(ctx context.Context, id string) error
}

// SubmitResult is the outcome of a scan submission. ScanID is empty when the
// record could not be persisted; ImageURL is empty when the object write
// failed. The prediction itself is always populated.
type SubmitResult struct {
	ScanID     string
	Prediction prediction.Result
	ImageURL   string
}

// ScanUseCase sequences authentication output, normalization, inference, and
// the two-store persistence step for scan submissions and deletions. It owns
// every cross-store consistency decision.
type ScanUseCase struct {
	repo    ScanRepository
	objects storage.ObjectStore
	model   classifier.Classifier
	cache   Cache
	bucket  string
	logger  *zap.Logger
}

type cachedScan struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	OriginalImageURL  string    `json:"original_image_url"`
	AnnotatedImageURL string    `json:"annotated_image_url"`
	StoragePath       string    `json:"storage_path"`
	PredictionLabel   string    `json:"prediction_label"`
	ConfidenceScore   float32   `json:"confidence_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewScanUseCase constructs a new use case instance. A nil model is allowed
// and makes submissions fail with ErrModelUnavailable while the rest of the
// API stays up.
func NewScanUseCase(repo ScanRepository, objects storage.ObjectStore, model classifier.Classifier, cache Cache, bucket string, logger *zap.Logger) *ScanUseCase {
	return &ScanUseCase{
		repo:    repo,
		objects: objects,
		model:   model,
		cache:   cache,
		bucket:  bucket,
		logger:  logger.Named("scan_usecase"),
	}
}

// ModelLoaded reports whether a classifier is available.
func (uc *ScanUseCase) ModelLoaded() bool {
	return uc.model != nil
}

// Submit classifies an uploaded image and persists it under the caller.
//
// Persistence is best-effort by design: a failed object write degrades to an
// empty ImageURL and no record, and a failed record insert after a successful
// object write leaves the object in place and returns without a ScanID. In
// both cases the computed prediction is still returned.
func (uc *ScanUseCase) Submit(ctx context.Context, userID, filename, contentType string, data []byte) (*SubmitResult, error) {
	if len(data) == 0 || filename == "" {
		return nil, ErrInvalidInput
	}
	if uc.model == nil {
		return nil, ErrModelUnavailable
	}

	scanID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.submit_scan", scanID)

	tensor, err := imaging.Normalize(data)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrPreprocessing, err)
		opLogger.Error("image normalization failed", zap.Error(wrapped))
		return nil, wrapped
	}

	raw, err := uc.model.Predict(ctx, tensor.Data)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrInference, err)
		opLogger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	result, err := prediction.Interpret(raw)
	if err != nil {
		opLogger.Error("classifier output rejected", zap.Error(err), zap.Int("values", len(raw)))
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.%s", userID, scanID, fileExtension(filename))
	url, err := uc.objects.Upload(ctx, key, data, contentType)
	if err != nil {
		// Inference succeeded; return the prediction even though the image
		// could not be stored. No record is written without an object.
		opLogger.Warn("object write failed, returning prediction without persistence",
			zap.Error(fmt.Errorf("%w: %w", ErrStorage, err)))
		return &SubmitResult{Prediction: result}, nil
	}

	scan := &repository.Scan{
		ID:                scanID,
		UserID:            userID,
		OriginalImageURL:  url,
		AnnotatedImageURL: url,
		StoragePath:       key,
		PredictionLabel:   string(result.Label),
		ConfidenceScore:   result.Confidence,
		CreatedAt:         time.Now().UTC(),
	}
	if err := uc.repo.Insert(ctx, scan); err != nil {
		// The object is already written; accept the orphan rather than
		// discard a computed prediction. The missing ScanID signals that
		// durability did not complete.
		wrapped := logging.NewOperationError("usecase.insert_scan", scanID, fmt.Errorf("%w: %w", ErrPersistence, err))
		opLogger.Error("failed to persist scan record", zap.Error(wrapped))
		return &SubmitResult{Prediction: result, ImageURL: url}, nil
	}

	uc.cacheScan(ctx, opLogger, scan)

	return &SubmitResult{ScanID: scanID, Prediction: result, ImageURL: url}, nil
}

// GetScan returns a scan owned by the caller, consulting the cache first.
func (uc *ScanUseCase) GetScan(ctx context.Context, userID, scanID string) (*repository.Scan, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_scan", scanID)

	if scan, ok := uc.lookupCachedScan(ctx, opLogger, scanID); ok {
		if scan.UserID != userID {
			return nil, ErrForbidden
		}
		return scan, nil
	}

	scan, err := uc.repo.FindByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, repository.ErrScanNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if scan.UserID != userID {
		return nil, ErrForbidden
	}

	uc.cacheScan(ctx, opLogger, scan)
	return scan, nil
}

// ListScans returns all scans owned by the caller, newest first.
func (uc *ScanUseCase) ListScans(ctx context.Context, userID string) ([]*repository.Scan, error) {
	scans, err := uc.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return scans, nil
}

// Delete removes a scan's object and record after enforcing ownership. The
// record store is authoritative: a failed or already-absent object delete does
// not fail the call.
func (uc *ScanUseCase) Delete(ctx context.Context, userID, scanID string) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.delete_scan", scanID)

	scan, err := uc.repo.FindByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, repository.ErrScanNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if scan.UserID != userID {
		return ErrForbidden
	}

	key := scan.StoragePath
	if key == "" {
		key = storage.KeyFromURL(scan.OriginalImageURL, uc.bucket)
	}
	if key != "" {
		if err := uc.objects.Remove(ctx, key); err != nil {
			opLogger.Warn("object delete failed, removing record anyway",
				zap.Error(fmt.Errorf("%w: %w", ErrStorage, err)), zap.String("key", key))
		}
	}

	if err := uc.repo.DeleteByID(ctx, scanID); err != nil {
		if errors.Is(err, repository.ErrScanNotFound) {
			return ErrNotFound
		}
		wrapped := logging.NewOperationError("usecase.delete_scan", scanID, fmt.Errorf("%w: %w", ErrPersistence, err))
		opLogger.Error("failed to delete scan record", zap.Error(wrapped))
		return wrapped
	}

	if uc.cache != nil {
		if err := uc.cache.Del(ctx, scanCacheKey(scanID)); err != nil {
			opLogger.Warn("failed to invalidate scan cache", zap.Error(err))
		}
	}

	return nil
}

func (uc *ScanUseCase) cacheScan(ctx context.Context, opLogger *zap.Logger, scan *repository.Scan) {
	if uc.cache == nil {
		return
	}

	payload := cachedScan{
		ID:                scan.ID,
		UserID:            scan.UserID,
		OriginalImageURL:  scan.OriginalImageURL,
		AnnotatedImageURL: scan.AnnotatedImageURL,
		StoragePath:       scan.StoragePath,
		PredictionLabel:   scan.PredictionLabel,
		ConfidenceScore:   scan.ConfidenceScore,
		CreatedAt:         scan.CreatedAt,
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		opLogger.Warn("failed to serialize scan for cache", zap.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, scanCacheKey(scan.ID), string(serialized), scanCacheTTL); err != nil {
		opLogger.Warn("failed to cache scan", zap.Error(err))
	}
}

func (uc *ScanUseCase) lookupCachedScan(ctx context.Context, opLogger *zap.Logger, scanID string) (*repository.Scan, bool) {
	if uc.cache == nil {
		return nil, false
	}

	value, err := uc.cache.Get(ctx, scanCacheKey(scanID))
	if err != nil {
		return nil, false
	}
	var payload cachedScan
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		opLogger.Warn("failed to decode cached scan", zap.Error(err))
		return nil, false
	}
	return &repository.Scan{
		ID:                payload.ID,
		UserID:            payload.UserID,
		OriginalImageURL:  payload.OriginalImageURL,
		AnnotatedImageURL: payload.AnnotatedImageURL,
		StoragePath:       payload.StoragePath,
		PredictionLabel:   payload.PredictionLabel,
		ConfidenceScore:   payload.ConfidenceScore,
		CreatedAt:         payload.CreatedAt,
	}, true
}

func scanCacheKey(scanID string) string {
	return fmt.Sprintf("scan:%s", scanID)
}

func fileExtension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}
