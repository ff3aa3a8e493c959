package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GenerateReportDTO asks for a new report. PropertyID 0 covers every tenancy.
type GenerateReportDTO struct {
	ReportType ReportType `json:"reportType" validate:"required,oneof=credit rental landlord"`
	PropertyID uint       `json:"propertyId"`
}

// ReportListItem is a report header in listings
type ReportListItem struct {
	ReportID    string     `json:"reportId"`
	ReportType  ReportType `json:"reportType"`
	PropertyID  *uint      `json:"propertyId,omitempty"`
	RentScore   int        `json:"rentScore"`
	GeneratedAt time.Time  `json:"generatedDate"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ShareResult is returned once when a share is created. The token inside
// ShareURL is not stored and cannot be recovered later.
type ShareResult struct {
	ShareID   string    `json:"shareId"`
	ReportID  string    `json:"reportId"`
	ShareURL  string    `json:"shareUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ReportService generates, stores and shares report snapshots
type ReportService struct {
	db           *gorm.DB
	score        *ScoreService
	badges       *BadgeService
	publisher    EventPublisher
	validator    *validator.Validate
	shareBaseURL string
	now          func() time.Time
}

// NewReportService creates a report service. Share links are built on shareBaseURL.
func NewReportService(db *gorm.DB, score *ScoreService, badges *BadgeService, publisher EventPublisher, shareBaseURL string) *ReportService {
	return &ReportService{
		db:           db,
		score:        score,
		badges:       badges,
		publisher:    publisher,
		validator:    validator.New(),
		shareBaseURL: shareBaseURL,
		now:          time.Now,
	}
}

// WithClock replaces the clock used for generation and share expiry
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// Generate recomputes the tenant's metrics, awards badges and stores a new
// immutable report
func (s *ReportService) Generate(ctx context.Context, tenantID uint, dto GenerateReportDTO) (*Report, error) {
	start := time.Now()
	report, err := s.generate(ctx, tenantID, dto)
	utils.LogOperation(fmt.Sprintf("generate %s report for tenant %d", dto.ReportType, tenantID), start, err)
	return report, err
}

func (s *ReportService) generate(ctx context.Context, tenantID uint, dto GenerateReportDTO) (*Report, error) {
	if err := s.validator.Struct(dto); err != nil {
		return nil, validationError(err)
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	pass, err := s.score.evaluate(ctx, tenantID, dto.PropertyID)
	if err != nil {
		return nil, err
	}
	badges, err := s.badges.ListBadges(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	query := db.Preload("Property").Where("tenant_id = ?", tenantID)
	if dto.PropertyID != 0 {
		query = query.Where("property_id = ?", dto.PropertyID)
	}
	var tenancies []models.Tenancy
	if err := query.Order("start_date, id").Find(&tenancies).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenancies: %w", err)
	}

	report, err := AssembleReport(ReportInput{
		Type: dto.ReportType,
		User: UserInfo{
			TenantID: user.ID,
			FullName: user.FullName(),
			Email:    user.Email,
			Phone:    user.Phone,
		},
		Properties: propertyInfos(tenancies),
		History:    pass.history,
		Metrics:    pass.metrics,
		Badges:     badges,
	}, s.now(), uuid.NewString())
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	row := models.Report{
		ID:          report.ReportID,
		TenantID:    tenantID,
		ReportType:  string(report.ReportType),
		RentScore:   report.RentScore,
		GeneratedAt: report.GeneratedDate,
		ExpiresAt:   report.ExpiresAt,
		Payload:     datatypes.JSON(payload),
	}
	if dto.PropertyID != 0 {
		pid := dto.PropertyID
		row.PropertyID = &pid
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	utils.GetMetrics().RecordReportOperation("generate")
	utils.LogInfo("report %s (%s) generated for tenant %d, score %d", report.ReportID, report.ReportType, tenantID, report.RentScore)
	publishEvent(ctx, s.publisher, EventReportGenerated, tenantID, ReportGeneratedEvent{
		TenantID:    tenantID,
		Email:       user.Email,
		Name:        user.FullName(),
		ReportID:    report.ReportID,
		ReportType:  report.ReportType,
		RentScore:   report.RentScore,
		GeneratedAt: report.GeneratedDate,
	})

	return &report, nil
}

// Get returns a stored report to its owner. Share expiry does not apply.
func (s *ReportService) Get(ctx context.Context, ownerID uint, reportID string) (*Report, error) {
	row, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if row.TenantID != ownerID {
		return nil, ErrForbidden
	}
	return decodeReport(row)
}

// List returns the owner's reports, newest first
func (s *ReportService) List(ctx context.Context, ownerID uint) ([]ReportListItem, error) {
	var rows []models.Report
	if err := s.db.WithContext(ctx).
		Select("id", "tenant_id", "property_id", "report_type", "rent_score", "generated_at", "expires_at").
		Where("tenant_id = ?", ownerID).
		Order("generated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	items := make([]ReportListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ReportListItem{
			ReportID:    row.ID,
			ReportType:  ReportType(row.ReportType),
			PropertyID:  row.PropertyID,
			RentScore:   row.RentScore,
			GeneratedAt: row.GeneratedAt,
			ExpiresAt:   row.ExpiresAt,
		})
	}
	return items, nil
}

// ExportXML returns the owner's report as XML
func (s *ReportService) ExportXML(ctx context.Context, ownerID uint, reportID string) ([]byte, error) {
	report, err := s.Get(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}
	return ExportReportXML(*report)
}

// ShareReport creates a new 30-day share link. Every call makes a new share;
// the report itself is not touched.
func (s *ReportService) ShareReport(ctx context.Context, ownerID uint, reportID string) (*ShareResult, error) {
	start := time.Now()
	result, err := s.shareReport(ctx, ownerID, reportID)
	utils.LogOperation("share report "+reportID, start, err)
	return result, err
}

func (s *ReportService) shareReport(ctx context.Context, ownerID uint, reportID string) (*ShareResult, error) {
	row, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if row.TenantID != ownerID {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	if row.ExpiresAt != nil && utils.IsExpired(*row.ExpiresAt, now) {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrExpired)
	}

	token, err := utils.GenerateSecureToken(24)
	if err != nil {
		return nil, fmt.Errorf("failed to generate share token: %w", err)
	}
	hash, err := utils.HashShareToken(token)
	if err != nil {
		return nil, err
	}

	share := models.ReportShare{
		ID:        uuid.NewString(),
		ReportID:  row.ID,
		TenantID:  ownerID,
		TokenHash: hash,
		ExpiresAt: now.Add(ShareTTL),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&share).Error; err != nil {
		return nil, fmt.Errorf("failed to store share: %w", err)
	}

	utils.GetMetrics().RecordReportOperation("share")
	publishEvent(ctx, s.publisher, EventReportShared, ownerID, ReportSharedEvent{
		TenantID:  ownerID,
		ReportID:  row.ID,
		ShareID:   share.ID,
		ExpiresAt: share.ExpiresAt,
	})

	return &ShareResult{
		ShareID:   share.ID,
		ReportID:  row.ID,
		ShareURL:  s.shareURL(share.ID, token),
		ExpiresAt: share.ExpiresAt,
	}, nil
}

// OpenShare returns the report behind a share link. Unknown, revoked or
// mistyped links are ErrNotFound; links past their lifetime are ErrExpired.
func (s *ReportService) OpenShare(ctx context.Context, shareID, token string) (*Report, error) {
	db := s.db.WithContext(ctx)

	var share models.ReportShare
	if err := db.Where("id = ?", shareID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load share: %w", err)
	}
	if share.RevokedAt != nil || !utils.VerifyShareToken(token, share.TokenHash) {
		return nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
	}

	now := s.now().UTC()
	if utils.IsExpired(share.ExpiresAt, now) {
		utils.GetMetrics().RecordReportOperation("expired")
		return nil, fmt.Errorf("share %s: %w", shareID, ErrExpired)
	}

	row, err := s.load(ctx, share.ReportID)
	if err != nil {
		return nil, err
	}

	if err := db.Model(&models.ReportShare{}).Where("id = ?", share.ID).Updates(map[string]interface{}{
		"access_count":     gorm.Expr("access_count + 1"),
		"last_accessed_at": now,
	}).Error; err != nil {
		utils.LogError("failed to record access to share %s: %v", share.ID, err)
	}

	utils.GetMetrics().RecordReportOperation("open")
	return decodeReport(row)
}

// RevokeShare disables a share link. Revoking twice is a no-op.
func (s *ReportService) RevokeShare(ctx context.Context, ownerID uint, shareID string) error {
	db := s.db.WithContext(ctx)

	var share models.ReportShare
	if err := db.Where("id = ?", shareID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}
		return fmt.Errorf("failed to load share: %w", err)
	}
	if share.TenantID != ownerID {
		return ErrForbidden
	}
	if share.RevokedAt != nil {
		return nil
	}

	if err := db.Model(&models.ReportShare{}).Where("id = ?", share.ID).
		Update("revoked_at", s.now().UTC()).Error; err != nil {
		return fmt.Errorf("failed to revoke share: %w", err)
	}
	return nil
}

func (s *ReportService) load(ctx context.Context, reportID string) (*models.Report, error) {
	var row models.Report
	if err := s.db.WithContext(ctx).Where("id = ?", reportID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &row, nil
}

func (s *ReportService) shareURL(shareID, token string) string {
	return fmt.Sprintf("%s/shared/%s?token=%s", s.shareBaseURL, url.PathEscape(shareID), url.QueryEscape(token))
}

func decodeReport(row *models.Report) (*Report, error) {
	var report Report
	if err := json.Unmarshal(row.Payload, &report); err != nil {
		return nil, fmt.Errorf("report %s: stored payload is unreadable: %w", row.ID, err)
	}
	return &report, nil
}

func propertyInfos(tenancies []models.Tenancy) []PropertyInfo {
	out := make([]PropertyInfo, 0, len(tenancies))
	for _, t := range tenancies {
		out = append(out, PropertyInfo{
			PropertyID:         t.PropertyID,
			Address:            t.Property.Address(),
			Postcode:           t.Property.Postcode,
			MonthlyRent:        penceToPounds(t.Property.MonthlyRent),
			TenancyStart:       t.StartDate,
			TenancyEnd:         t.EndDate,
			LandlordName:       t.Property.LandlordName,
			VerificationStatus: t.VerificationStatus,
			VerifiedAt:         t.VerifiedAt,
		})
	}
	return out
}
