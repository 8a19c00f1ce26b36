package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/utils"
)

// patientIDAttempts bounds regeneration when a generated patientId collides.
const patientIDAttempts = 3

type patientDoc struct {
	ID                 bson.ObjectID `bson:"_id,omitempty"`
	PatientID          string        `bson:"patientId"`
	DoctorID           bson.ObjectID `bson:"doctorId"`
	Name               string        `bson:"name"`
	Age                int           `bson:"age"`
	Gender             string        `bson:"gender"`
	Email              string        `bson:"email"`
	Phone              string        `bson:"phone"`
	MedicalHistory     string        `bson:"medicalHistory"`
	CurrentMedications []string      `bson:"currentMedications"`
	Allergies          string        `bson:"allergies"`
	BloodGroup         string        `bson:"bloodGroup"`
	Status             string        `bson:"status"`
	LastAnalysisAt     *time.Time    `bson:"lastAnalysisAt"`
	TotalAnalyses      int           `bson:"totalAnalyses"`
	CreatedAt          time.Time     `bson:"createdAt"`
	UpdatedAt          time.Time     `bson:"updatedAt"`
}

func (d *patientDoc) model() models.DoctorPatient {
	return models.DoctorPatient{
		ID:                 d.ID.Hex(),
		PatientID:          d.PatientID,
		DoctorID:           d.DoctorID.Hex(),
		Name:               d.Name,
		Age:                d.Age,
		Gender:             d.Gender,
		Email:              d.Email,
		Phone:              d.Phone,
		MedicalHistory:     d.MedicalHistory,
		CurrentMedications: d.CurrentMedications,
		Allergies:          d.Allergies,
		BloodGroup:         d.BloodGroup,
		Status:             d.Status,
		LastAnalysisAt:     d.LastAnalysisAt,
		TotalAnalyses:      d.TotalAnalyses,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func (s *Store) CreatePatient(ctx context.Context, p *models.DoctorPatient) error {
	doctorID, err := objectID(p.DoctorID)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = models.PatientStatusActive
	}
	if p.CurrentMedications == nil {
		p.CurrentMedications = []string{}
	}
	now := s.now()
	doc := patientDoc{
		DoctorID:           doctorID,
		Name:               p.Name,
		Age:                p.Age,
		Gender:             p.Gender,
		Email:              p.Email,
		Phone:              p.Phone,
		MedicalHistory:     p.MedicalHistory,
		CurrentMedications: p.CurrentMedications,
		Allergies:          p.Allergies,
		BloodGroup:         p.BloodGroup,
		Status:             p.Status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for attempt := 1; ; attempt++ {
		doc.ID = bson.NewObjectID()
		doc.PatientID = utils.GeneratePatientID(s.now())
		_, err = s.patients.InsertOne(ctx, doc)
		err = translate(err, "insert patient")
		if !errors.Is(err, store.ErrDuplicate) || attempt == patientIDAttempts {
			break
		}
	}
	if err != nil {
		return err
	}
	p.ID = doc.ID.Hex()
	p.PatientID = doc.PatientID
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *Store) ListPatients(ctx context.Context, doctorID string) ([]models.DoctorPatient, error) {
	oid, err := objectID(doctorID)
	if err != nil {
		return []models.DoctorPatient{}, nil
	}
	cur, err := s.patients.Find(ctx, bson.M{"doctorId": oid}, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, translate(err, "find patients")
	}
	var docs []patientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "decode patients")
	}
	out := make([]models.DoctorPatient, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

// scoped builds the ownership filter every doctor-facing lookup uses.
func scoped(doctorID, id string) (bson.M, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	did, err := objectID(doctorID)
	if err != nil {
		return nil, err
	}
	return bson.M{"_id": oid, "doctorId": did}, nil
}

func (s *Store) findPatient(ctx context.Context, filter bson.M) (*models.DoctorPatient, error) {
	var doc patientDoc
	if err := s.patients.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err, "find patient")
	}
	p := doc.model()
	return &p, nil
}

func (s *Store) GetPatient(ctx context.Context, doctorID, id string) (*models.DoctorPatient, error) {
	filter, err := scoped(doctorID, id)
	if err != nil {
		return nil, err
	}
	return s.findPatient(ctx, filter)
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (*models.DoctorPatient, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findPatient(ctx, bson.M{"_id": oid})
}

func patientSet(upd models.PatientUpdate) bson.M {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Age != nil {
		set["age"] = *upd.Age
	}
	if upd.Gender != nil {
		set["gender"] = *upd.Gender
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.MedicalHistory != nil {
		set["medicalHistory"] = *upd.MedicalHistory
	}
	if upd.CurrentMedications != nil {
		set["currentMedications"] = *upd.CurrentMedications
	}
	if upd.Allergies != nil {
		set["allergies"] = *upd.Allergies
	}
	if upd.BloodGroup != nil {
		set["bloodGroup"] = *upd.BloodGroup
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	return set
}

func (s *Store) UpdatePatient(ctx context.Context, doctorID, id string, upd models.PatientUpdate) (*models.DoctorPatient, error) {
	filter, err := scoped(doctorID, id)
	if err != nil {
		return nil, err
	}
	set := patientSet(upd)
	set["updatedAt"] = s.now()
	var doc patientDoc
	err = s.patients.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, translate(err, "update patient")
	}
	p := doc.model()
	return &p, nil
}

func (s *Store) DeletePatient(ctx context.Context, doctorID, id string) error {
	filter, err := scoped(doctorID, id)
	if err != nil {
		return err
	}
	res, err := s.patients.DeleteOne(ctx, filter)
	if err != nil {
		return translate(err, "delete patient")
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPatientIDs(ctx context.Context, doctorID string) ([]string, error) {
	oid, err := objectID(doctorID)
	if err != nil {
		return []string{}, nil
	}
	cur, err := s.patients.Find(ctx, bson.M{"doctorId": oid}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, translate(err, "find patient ids")
	}
	var rows []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, translate(err, "decode patient ids")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID.Hex())
	}
	return ids, nil
}

func (s *Store) RecordAnalysis(ctx context.Context, id string, at time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.patients.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$inc": bson.M{"totalAnalyses": 1},
		"$set": bson.M{"lastAnalysisAt": at, "updatedAt": s.now()},
	})
	if err != nil {
		return translate(err, "record analysis")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
