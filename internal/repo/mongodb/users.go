package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rjwalters/userhub/internal/domain/user"
	"github.com/rjwalters/userhub/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already used")
)

// projection that keeps the password hash out of everything except the
// login lookup.
var withoutPassword = bson.M{"password": 0}

type UsersRepo struct {
	users *mongo.Collection
	prom  *observability.Prom
}

func (repo *UsersRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{users: db.Collection("users"), prom: prom}
}

// EnsureIndexes creates the unique email index. The server enforces the
// constraint atomically, so two concurrent registrations with the same
// email cannot both succeed.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return err
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           primitive.NewObjectID().Hex(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	op := "users.create"

	err := r.observe(op, func() error {
		_, err := r.users.InsertOne(ctx, u)
		return err
	})

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, ErrEmailAlreadyUsed
		}

		return user.User{}, err
	}

	// the stored hash stays in the database; callers get the public shape
	u.PasswordHash = ""

	return u, nil
}

// GetByEmailWithPassword returns the user including the password hash.
// Only the login flow should call this.
func (r *UsersRepo) GetByEmailWithPassword(ctx context.Context, email string) (user.User, error) {
	var u user.User

	op := "users.get_by_email"

	err := r.observe(op, func() error {
		return r.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	op := "users.get_by_id"

	err := r.observe(op, func() error {
		return r.users.FindOne(
			ctx,
			bson.M{"_id": id},
			options.FindOne().SetProjection(withoutPassword),
		).Decode(&u)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	op := "users.list"

	var users []user.User

	err := r.observe(op, func() error {
		cur, err := r.users.Find(ctx, bson.M{}, options.Find().SetProjection(withoutPassword))

		if err != nil {
			return err
		}

		defer cur.Close(ctx)

		return cur.All(ctx, &users)
	})

	if err != nil {
		return nil, err
	}

	if users == nil {
		users = []user.User{}
	}

	return users, nil
}
