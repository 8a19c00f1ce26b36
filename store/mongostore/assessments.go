package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type assessmentDoc struct {
	ID               bson.ObjectID            `bson:"_id,omitempty"`
	UserID           bson.ObjectID            `bson:"userId"`
	DoctorPatientID  *bson.ObjectID           `bson:"doctorPatientId"`
	Symptoms         string                   `bson:"symptoms"`
	Medications      []string                 `bson:"medications"`
	Triage           models.Triage            `bson:"triage"`
	FollowupAnswers  map[string]interface{}   `bson:"followupAnswers"`
	SOAPNote         models.SOAPNote          `bson:"soapNote"`
	Conditions       []models.Condition       `bson:"conditions"`
	DrugInteractions []models.DrugInteraction `bson:"drugInteractions"`
	RedFlags         []string                 `bson:"redFlags"`
	CreatedAt        time.Time                `bson:"createdAt"`
	UpdatedAt        time.Time                `bson:"updatedAt"`
}

func (d *assessmentDoc) model() models.Assessment {
	a := models.Assessment{
		ID:               d.ID.Hex(),
		UserID:           d.UserID.Hex(),
		Symptoms:         d.Symptoms,
		Medications:      d.Medications,
		Triage:           d.Triage,
		FollowupAnswers:  d.FollowupAnswers,
		SOAPNote:         d.SOAPNote,
		Conditions:       d.Conditions,
		DrugInteractions: d.DrugInteractions,
		RedFlags:         d.RedFlags,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.DoctorPatientID != nil {
		pid := d.DoctorPatientID.Hex()
		a.DoctorPatientID = &pid
	}
	return a
}

func (s *Store) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	userID, err := objectID(a.UserID)
	if err != nil {
		return err
	}
	now := s.now()
	doc := assessmentDoc{
		ID:               bson.NewObjectID(),
		UserID:           userID,
		Symptoms:         a.Symptoms,
		Medications:      a.Medications,
		Triage:           a.Triage,
		FollowupAnswers:  a.FollowupAnswers,
		SOAPNote:         a.SOAPNote,
		Conditions:       a.Conditions,
		DrugInteractions: a.DrugInteractions,
		RedFlags:         a.RedFlags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if a.DoctorPatientID != nil {
		pid, err := objectID(*a.DoctorPatientID)
		if err != nil {
			return err
		}
		doc.DoctorPatientID = &pid
	}
	if _, err := s.assessments.InsertOne(ctx, doc); err != nil {
		return translate(err, "insert assessment")
	}
	a.ID = doc.ID.Hex()
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc assessmentDoc
	if err := s.assessments.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, translate(err, "find assessment")
	}
	a := doc.model()
	return &a, nil
}

func (s *Store) findAssessments(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]models.Assessment, error) {
	cur, err := s.assessments.Find(ctx, filter, opts...)
	if err != nil {
		return nil, translate(err, "find assessments")
	}
	var docs []assessmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "decode assessments")
	}
	out := make([]models.Assessment, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

func (s *Store) ListUserAssessments(ctx context.Context, userID string) ([]models.AssessmentSummary, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []models.AssessmentSummary{}, nil
	}
	list, err := s.findAssessments(ctx, bson.M{"userId": oid},
		options.Find().
			SetSort(newestFirst()).
			SetProjection(bson.M{"symptoms": 1, "triage": 1, "createdAt": 1}))
	if err != nil {
		return nil, err
	}
	out := make([]models.AssessmentSummary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summary())
	}
	return out, nil
}

func (s *Store) ListPatientAssessments(ctx context.Context, patientID string) ([]models.Assessment, error) {
	oid, err := objectID(patientID)
	if err != nil {
		return []models.Assessment{}, nil
	}
	return s.findAssessments(ctx, bson.M{"doctorPatientId": oid}, options.Find().SetSort(newestFirst()))
}

func (s *Store) ListAssessmentsForPatients(ctx context.Context, patientIDs []string) ([]models.Assessment, error) {
	return s.findAssessments(ctx,
		bson.M{"doctorPatientId": bson.M{"$in": objectIDs(patientIDs)}},
		options.Find().SetSort(newestFirst()))
}

func (s *Store) LatestAssessments(ctx context.Context, patientIDs []string) (map[string]models.Assessment, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctorPatientId": bson.M{"$in": objectIDs(patientIDs)}}}},
		{{Key: "$sort", Value: newestFirst()}},
		{{Key: "$group", Value: bson.M{"_id": "$doctorPatientId", "latest": bson.M{"$first": "$$ROOT"}}}},
	}
	cur, err := s.assessments.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "aggregate latest assessments")
	}
	var rows []struct {
		ID     bson.ObjectID `bson:"_id"`
		Latest assessmentDoc `bson:"latest"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, translate(err, "decode latest assessments")
	}
	latest := make(map[string]models.Assessment, len(rows))
	for i := range rows {
		latest[rows[i].ID.Hex()] = rows[i].Latest.model()
	}
	return latest, nil
}

type statsFacet struct {
	Total []struct {
		N int `bson:"n"`
	} `bson:"total"`
	Recent []struct {
		N int `bson:"n"`
	} `bson:"recent"`
	Triage []struct {
		Color *string `bson:"_id"`
		Count int     `bson:"count"`
	} `bson:"triage"`
	Urgency []struct {
		Avg *float64 `bson:"avg"`
	} `bson:"urgency"`
	Conditions []struct {
		Name  string `bson:"_id"`
		Count int    `bson:"count"`
	} `bson:"conditions"`
}

// statsPipeline computes every dashboard aggregate in one $facet pass over
// the given patients' assessments.
func statsPipeline(patientIDs []string, since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctorPatientId": bson.M{"$in": objectIDs(patientIDs)}}}},
		{{Key: "$facet", Value: bson.M{
			"total": bson.A{
				bson.M{"$count": "n"},
			},
			"recent": bson.A{
				bson.M{"$match": bson.M{"createdAt": bson.M{"$gte": since}}},
				bson.M{"$count": "n"},
			},
			"triage": bson.A{
				bson.M{"$group": bson.M{"_id": "$triage.color", "count": bson.M{"$sum": 1}}},
			},
			"urgency": bson.A{
				bson.M{"$match": bson.M{"triage.urgency_score": bson.M{"$ne": nil}}},
				bson.M{"$group": bson.M{"_id": nil, "avg": bson.M{"$avg": "$triage.urgency_score"}}},
			},
			"conditions": bson.A{
				bson.M{"$unwind": "$conditions"},
				bson.M{"$group": bson.M{"_id": "$conditions.name", "count": bson.M{"$sum": 1}}},
				bson.M{"$sort": bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}},
				bson.M{"$limit": store.TopConditionsLimit},
			},
		}}},
	}
}

func (f *statsFacet) stats() *models.AssessmentStats {
	stats := &models.AssessmentStats{TriageCounts: make(map[string]int)}
	if len(f.Total) > 0 {
		stats.Total = f.Total[0].N
	}
	if len(f.Recent) > 0 {
		stats.Recent = f.Recent[0].N
	}
	for _, t := range f.Triage {
		color := ""
		if t.Color != nil {
			color = *t.Color
		}
		stats.TriageCounts[color] += t.Count
	}
	if len(f.Urgency) > 0 {
		stats.AvgUrgency = f.Urgency[0].Avg
	}
	for _, c := range f.Conditions {
		stats.TopConditions = append(stats.TopConditions, models.ConditionCount{Name: c.Name, Count: c.Count})
	}
	return stats
}

func (s *Store) AssessmentStats(ctx context.Context, patientIDs []string, since time.Time) (*models.AssessmentStats, error) {
	cur, err := s.assessments.Aggregate(ctx, statsPipeline(patientIDs, since))
	if err != nil {
		return nil, translate(err, "aggregate stats")
	}
	var facets []statsFacet
	if err := cur.All(ctx, &facets); err != nil {
		return nil, translate(err, "decode stats")
	}
	if len(facets) == 0 {
		return &models.AssessmentStats{TriageCounts: make(map[string]int)}, nil
	}
	return facets[0].stats(), nil
}
