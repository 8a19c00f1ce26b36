package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type intakeDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Token     string        `bson:"token"`
	PatientID bson.ObjectID `bson:"patientId"`
	DoctorID  bson.ObjectID `bson:"doctorId"`
	Status    string        `bson:"status"`
	ExpiresAt time.Time     `bson:"expiresAt"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (s *Store) CreateIntake(ctx context.Context, r *models.IntakeRequest) error {
	patientID, err := objectID(r.PatientID)
	if err != nil {
		return err
	}
	doctorID, err := objectID(r.DoctorID)
	if err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = models.IntakePending
	}
	now := s.now()
	doc := intakeDoc{
		ID:        bson.NewObjectID(),
		Token:     r.Token,
		PatientID: patientID,
		DoctorID:  doctorID,
		Status:    r.Status,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.intakes.InsertOne(ctx, doc); err != nil {
		return translate(err, "insert intake")
	}
	r.ID = doc.ID.Hex()
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (s *Store) GetIntakeByToken(ctx context.Context, token string) (*models.IntakeRequest, error) {
	var doc intakeDoc
	if err := s.intakes.FindOne(ctx, bson.M{"token": token}).Decode(&doc); err != nil {
		return nil, translate(err, "find intake")
	}
	return &models.IntakeRequest{
		ID:        doc.ID.Hex(),
		Token:     doc.Token,
		PatientID: doc.PatientID.Hex(),
		DoctorID:  doc.DoctorID.Hex(),
		Status:    doc.Status,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *Store) CompleteIntake(ctx context.Context, token string) error {
	res, err := s.intakes.UpdateOne(ctx,
		bson.M{"token": token, "status": models.IntakePending},
		bson.M{"$set": bson.M{"status": models.IntakeCompleted, "updatedAt": s.now()}})
	if err != nil {
		return translate(err, "complete intake")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetIntakeByToken(ctx, token); err != nil {
		return err
	}
	return store.ErrIntakeNotPending
}
