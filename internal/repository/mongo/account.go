// Package mongo implements the AccountStore on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dtroode/account-server/internal/model"
)

// UsersCollection is the collection accounts are stored in.
const UsersCollection = "users"

var _ model.AccountStore = (*AccountRepository)(nil)

type accountDocument struct {
	ID                      string     `bson:"_id"`
	Username                string     `bson:"username"`
	FullName                string     `bson:"fullName"`
	Email                   string     `bson:"email"`
	Password                string     `bson:"password"`
	ProfileImg              string     `bson:"profileImg,omitempty"`
	Role                    string     `bson:"role"`
	IsVerified              bool       `bson:"isVerified"`
	VerificationCode        *string    `bson:"verificationCode,omitempty"`
	VerificationCodeExpires *time.Time `bson:"verificationCodeExpires,omitempty"`
	ResetCode               *string    `bson:"resetCode,omitempty"`
	ResetCodeExpires        *time.Time `bson:"resetCodeExpires,omitempty"`
	CreatedAt               time.Time  `bson:"createdAt"`
	UpdatedAt               time.Time  `bson:"updatedAt"`
}

func toDocument(a model.Account) accountDocument {
	doc := accountDocument{
		ID:         a.ID.String(),
		Username:   a.Username,
		FullName:   a.FullName,
		Email:      a.Email,
		Password:   a.PasswordHash,
		ProfileImg: a.ProfileImage,
		Role:       a.Role,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	doc.VerificationCode, doc.VerificationCodeExpires = splitCode(a.Verification)
	doc.ResetCode, doc.ResetCodeExpires = splitCode(a.Reset)
	return doc
}

func (d accountDocument) toModel() (model.Account, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to parse account id %q: %w", d.ID, err)
	}
	return model.Account{
		ID:           id,
		Username:     d.Username,
		FullName:     d.FullName,
		Email:        d.Email,
		PasswordHash: d.Password,
		ProfileImage: d.ProfileImg,
		Role:         d.Role,
		IsVerified:   d.IsVerified,
		Verification: joinCode(d.VerificationCode, d.VerificationCodeExpires),
		Reset:        joinCode(d.ResetCode, d.ResetCodeExpires),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

func splitCode(c *model.OneTimeCode) (*string, *time.Time) {
	if c == nil {
		return nil, nil
	}
	code, expires := c.Code, c.ExpiresAt.UTC()
	return &code, &expires
}

func joinCode(code *string, expires *time.Time) *model.OneTimeCode {
	if code == nil || expires == nil {
		return nil
	}
	return &model.OneTimeCode{Code: *code, ExpiresAt: *expires}
}

// EnsureIndexes creates the unique indexes on email and username.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName("username_unique").SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// AccountRepository stores accounts as documents in the users collection.
type AccountRepository struct {
	conn *Connection
	coll *mongo.Collection
	now  func() time.Time
}

// NewAccountRepository creates a repository over conn.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{
		conn: conn,
		coll: conn.Database.Collection(UsersCollection),
		now:  time.Now,
	}
}

func (r *AccountRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// Create inserts a new account document.
func (r *AccountRepository) Create(ctx context.Context, account model.Account) (model.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := r.timestamp()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, toDocument(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.Account{}, model.ErrDuplicateKey
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetByID returns the account with the given id.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}}, "failed to get account by id")
}

// GetByEmail returns the account registered with email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, "failed to get account by email")
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.D, errMsg string) (model.Account, error) {
	var doc accountDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("%s: %w", errMsg, err)
	}
	return doc.toModel()
}

// Update sets the supplied fields and returns the updated account.
func (r *AccountRepository) Update(ctx context.Context, id uuid.UUID, update model.AccountUpdate) (model.Account, error) {
	set := updateSet(update)
	set = append(set, bson.E{Key: "updatedAt", Value: r.timestamp()})

	account, err := r.findOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to update account: %w", err)
	}
	return account, nil
}

func updateSet(u model.AccountUpdate) bson.D {
	set := bson.D{}
	if u.FullName != nil {
		set = append(set, bson.E{Key: "fullName", Value: *u.FullName})
	}
	if u.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *u.Email})
	}
	if u.Username != nil {
		set = append(set, bson.E{Key: "username", Value: *u.Username})
	}
	if u.ProfileImage != nil {
		set = append(set, bson.E{Key: "profileImg", Value: *u.ProfileImage})
	}
	if u.PasswordHash != nil {
		set = append(set, bson.E{Key: "password", Value: *u.PasswordHash})
	}
	if u.Verification != nil {
		set = append(set,
			bson.E{Key: "verificationCode", Value: u.Verification.Code},
			bson.E{Key: "verificationCodeExpires", Value: u.Verification.ExpiresAt.UTC()},
		)
	}
	if u.Reset != nil {
		set = append(set,
			bson.E{Key: "resetCode", Value: u.Reset.Code},
			bson.E{Key: "resetCodeExpires", Value: u.Reset.ExpiresAt.UTC()},
		)
	}
	return set
}

// Delete removes the account document.
func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ConsumeVerificationCode verifies the account in one FindOneAndUpdate whose
// filter only matches an unexpired pair, so a code is redeemed at most once.
func (r *AccountRepository) ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) (model.Account, error) {
	filter := bson.D{
		{Key: "email", Value: email},
		{Key: "verificationCode", Value: code},
		{Key: "verificationCodeExpires", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "isVerified", Value: true},
			{Key: "updatedAt", Value: r.timestamp()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "verificationCode", Value: ""},
			{Key: "verificationCodeExpires", Value: ""},
		}},
	}

	account, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to consume verification code: %w", err)
	}
	return account, nil
}

// ConsumeResetCode replaces the password hash in one FindOneAndUpdate whose
// filter only matches an unexpired reset pair.
func (r *AccountRepository) ConsumeResetCode(ctx context.Context, email, code string, now time.Time, passwordHash string) (model.Account, error) {
	filter := bson.D{
		{Key: "email", Value: email},
		{Key: "resetCode", Value: code},
		{Key: "resetCodeExpires", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password", Value: passwordHash},
			{Key: "updatedAt", Value: r.timestamp()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "resetCode", Value: ""},
			{Key: "resetCodeExpires", Value: ""},
		}},
	}

	account, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to consume reset code: %w", err)
	}
	return account, nil
}

// findOneAndUpdate returns the document after the update. The sentinel errors
// are wrapped so callers can add context and still match them with errors.Is.
func (r *AccountRepository) findOneAndUpdate(ctx context.Context, filter, update bson.D) (model.Account, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Account{}, model.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return model.Account{}, model.ErrDuplicateKey
		}
		return model.Account{}, err
	}
	return doc.toModel()
}

// Ping checks the connection.
func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}
