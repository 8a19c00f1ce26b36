package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type userDoc struct {
	ID            bson.ObjectID `bson:"_id,omitempty"`
	Name          string        `bson:"name"`
	Email         string        `bson:"email"`
	Password      string        `bson:"password,omitempty"`
	Role          string        `bson:"role"`
	Credits       *int          `bson:"credits,omitempty"`
	Position      string        `bson:"position"`
	Qualification string        `bson:"qualification"`
	CreatedAt     time.Time     `bson:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

func (d *userDoc) model() *models.User {
	u := &models.User{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		Email:         d.Email,
		PasswordHash:  d.Password,
		Role:          d.Role,
		Credits:       models.DefaultCredits,
		Position:      d.Position,
		Qualification: d.Qualification,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Credits != nil {
		u.Credits = *d.Credits
	}
	return u
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	now := s.now()
	if u.Credits == 0 {
		u.Credits = models.DefaultCredits
	}
	if u.Role == "" {
		u.Role = models.RolePatient
	}
	credits := u.Credits
	doc := userDoc{
		ID:            bson.NewObjectID(),
		Name:          u.Name,
		Email:         u.Email,
		Password:      u.PasswordHash,
		Role:          u.Role,
		Credits:       &credits,
		Position:      u.Position,
		Qualification: u.Qualification,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return translate(err, "insert user")
	}
	u.ID = doc.ID.Hex()
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err, "find user")
	}
	return doc.model(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Position != nil {
		set["position"] = *upd.Position
	}
	if upd.Qualification != nil {
		set["qualification"] = *upd.Qualification
	}
	if upd.PasswordHash != nil {
		set["password"] = *upd.PasswordHash
	}
	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, translate(err, "update user")
	}
	return doc.model(), nil
}

type creditsDoc struct {
	Credits *int `bson:"credits"`
}

func (s *Store) Credits(ctx context.Context, id string) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	// Accounts created before the credit ledger existed have no balance.
	var doc creditsDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "credits": nil},
		bson.M{"$set": bson.M{"credits": models.DefaultCredits}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"credits": 1}),
	).Decode(&doc)
	if err == nil && doc.Credits != nil {
		return *doc.Credits, nil
	}
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, translate(err, "backfill credits")
	}
	err = s.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"credits": 1})).Decode(&doc)
	if err != nil {
		return 0, translate(err, "find credits")
	}
	if doc.Credits == nil {
		return models.DefaultCredits, nil
	}
	return *doc.Credits, nil
}

// debit matches the user only while the balance covers amount, so the
// check and the decrement are a single atomic update.
func debit(oid bson.ObjectID, amount int) (filter, update bson.M) {
	return bson.M{"_id": oid, "credits": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"credits": -amount}}
}

func (s *Store) DeductCredits(ctx context.Context, id string, amount int) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	for attempt := 0; ; attempt++ {
		var doc creditsDoc
		filter, update := debit(oid, amount)
		err = s.users.FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"credits": 1}),
		).Decode(&doc)
		if err == nil {
			if doc.Credits == nil {
				return 0, nil
			}
			return *doc.Credits, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, translate(err, "deduct credits")
		}
		// Either the user is gone, the balance is short, or the balance was
		// never initialised. Credits backfills the last case.
		balance, err := s.Credits(ctx, id)
		if err != nil {
			return 0, err
		}
		if balance < amount || attempt > 0 {
			return balance, store.ErrInsufficientCredits
		}
	}
}

func (s *Store) AddCredits(ctx context.Context, id string, amount int) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	if _, err := s.Credits(ctx, id); err != nil {
		return 0, err
	}
	var doc creditsDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$inc": bson.M{"credits": amount}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"credits": 1}),
	).Decode(&doc)
	if err != nil {
		return 0, translate(err, "add credits")
	}
	if doc.Credits == nil {
		return 0, nil
	}
	return *doc.Credits, nil
}
