package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/blobstore"
	"github.com/chemoward/api/internal/platform/db"
	"github.com/chemoward/api/pkg/pagination"
)

// DefaultPhoneRegion is used for numbers written without a country code.
const DefaultPhoneRegion = "TH"

type Service struct {
	repo   Repository
	blobs  blobstore.Store
	tx     db.TxRunner
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, blobs blobstore.Store, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		tx:     tx,
		logger: logger.With().Str("component", "patient").Logger(),
		now:    time.Now,
	}
}

// Upload is one file received for a patient.
type Upload struct {
	Name    string
	Content io.Reader
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.HN = strings.TrimSpace(p.HN)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.Status == "" {
		p.Status = StatusActive
	}
	p.ID = 0
	p.IsDeleted = false
	p.TreatmentPlan = TreatmentPlan{}
	p.Attachments = []Attachment{}
	if err := s.normalize(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// normalize checks required and enumerated fields and rewrites the phone
// number to E.164.
func (s *Service) normalize(p *Patient) error {
	if !validStatuses[p.Status] {
		return &ValidationError{Msg: fmt.Sprintf("invalid patient status: %s", p.Status)}
	}
	if p.HN == "" || p.FirstName == "" || p.LastName == "" || p.BirthDate.IsZero() {
		return &ValidationError{Msg: "HN, First Name, Last Name, and Birth Date are required."}
	}
	if p.Phone != nil {
		e164, err := NormalizePhone(*p.Phone)
		if err != nil {
			return err
		}
		p.Phone = &e164
	}
	return nil
}

// NormalizePhone parses a phone number, assuming DefaultPhoneRegion when no
// country code is given, and formats it as E.164.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", &ValidationError{Msg: fmt.Sprintf("invalid phone number: %s", raw)}
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Get returns a non-deleted patient.
func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, ErrNotFound
	}
	return p, nil
}

// PatientExists reports whether id names a patient that has not been soft
// deleted. Appointment scheduling uses it to validate patientId.
func (s *Service) PatientExists(ctx context.Context, id int64) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) List(ctx context.Context, pg pagination.Params) ([]*Patient, int, error) {
	return s.repo.List(ctx, pg)
}

func (s *Service) Search(ctx context.Context, query string, pg pagination.Params) ([]*Patient, int, error) {
	if strings.TrimSpace(query) == "" {
		return s.repo.List(ctx, pg)
	}
	return s.repo.Search(ctx, query, pg)
}

// Update applies a partial edit. Attachments and the deleted flag are not
// editable through it.
func (s *Service) Update(ctx context.Context, id int64, u Update) (*Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Apply(u); err != nil {
		return nil, err
	}
	if err := s.normalize(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// AddAttachments stores each upload and appends it to the patient's list in
// upload order. Files are written before the row is locked; if the row update
// fails they are removed again.
func (s *Service) AddAttachments(ctx context.Context, id int64, uploads []Upload) (*Patient, error) {
	if len(uploads) == 0 {
		return nil, &ValidationError{Msg: "At least one file is required."}
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	added := make([]Attachment, 0, len(uploads))
	for _, up := range uploads {
		obj, err := s.blobs.Put(ctx, up.Name, up.Content)
		if err != nil {
			s.discardBlobs(ctx, added)
			if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrMissingFileName) {
				return nil, &ValidationError{Msg: err.Error()}
			}
			return nil, fmt.Errorf("store attachment %q: %w", up.Name, err)
		}
		added = append(added, Attachment{
			ID:          uuid.NewString(),
			Name:        up.Name,
			Path:        obj.Key,
			ContentType: obj.ContentType,
			Size:        obj.Size,
			UploadedAt:  s.now().UTC(),
		})
	}

	var out *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lockActive(ctx, id)
		if err != nil {
			return err
		}
		p.Attachments = append(p.Attachments, added...)
		if err := s.repo.SetAttachments(ctx, id, p.Attachments); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		s.discardBlobs(ctx, added)
		return nil, err
	}

	s.logger.Info().Int64("patient_id", id).Int("count", len(added)).Msg("attachments added")
	return out, nil
}

// RemoveAttachment drops the attachment with the given id.
func (s *Service) RemoveAttachment(ctx context.Context, id int64, attachmentID string) (*Patient, error) {
	return s.removeAttachments(ctx, id, func(a Attachment) bool { return a.ID == attachmentID })
}

// RemoveAttachmentsByPath drops every attachment stored at path.
func (s *Service) RemoveAttachmentsByPath(ctx context.Context, id int64, path string) (*Patient, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ValidationError{Msg: "Attachment path is required."}
	}
	return s.removeAttachments(ctx, id, func(a Attachment) bool { return a.Path == path })
}

func (s *Service) removeAttachments(ctx context.Context, id int64, match func(Attachment) bool) (*Patient, error) {
	var (
		out     *Patient
		removed []Attachment
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lockActive(ctx, id)
		if err != nil {
			return err
		}
		kept := make([]Attachment, 0, len(p.Attachments))
		for _, a := range p.Attachments {
			if match(a) {
				removed = append(removed, a)
				continue
			}
			kept = append(kept, a)
		}
		if len(removed) == 0 {
			return ErrAttachmentNotFound
		}
		if err := s.repo.SetAttachments(ctx, id, kept); err != nil {
			return err
		}
		p.Attachments = kept
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.discardBlobs(ctx, removed)
	s.logger.Info().Int64("patient_id", id).Int("count", len(removed)).Msg("attachments removed")
	return out, nil
}

// OpenAttachment returns the stored file for one attachment. The caller
// closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, id int64, attachmentID string) (io.ReadCloser, *Attachment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for i := range p.Attachments {
		a := p.Attachments[i]
		if a.ID != attachmentID {
			continue
		}
		rc, err := s.blobs.Open(ctx, a.Path)
		if errors.Is(err, blobstore.ErrBlobNotFound) || errors.Is(err, blobstore.ErrInvalidKey) {
			return nil, nil, ErrAttachmentNotFound
		}
		if err != nil {
			return nil, nil, err
		}
		return rc, &a, nil
	}
	return nil, nil, ErrAttachmentNotFound
}

func (s *Service) lockActive(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, ErrNotFound
	}
	return p, nil
}

// discardBlobs deletes stored files. Failures are logged, not returned.
func (s *Service) discardBlobs(ctx context.Context, atts []Attachment) {
	for _, a := range atts {
		if err := s.blobs.Delete(ctx, a.Path); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("path", a.Path).Msg("could not delete attachment file")
		}
	}
}
