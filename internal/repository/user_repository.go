package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/domain"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

const (
	pgUniqueViolation       = "23505"
	pgInvalidTextRepresent  = "22P02"
	usersEmailUniqueKeyName = "users_email_key"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("record not found")

// DB is the subset of pgxpool.Pool used by repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository defines persistence access for marketplace users.
type UserRepository interface {
	// Save inserts a user without ID or updates an existing one. A password staged with
	// User.SetPassword is hashed as part of the save.
	Save(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

type userRepository struct {
	db         DB
	bcryptCost int
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB, bcryptCost int) UserRepository {
	return &userRepository{db: db, bcryptCost: bcryptCost}
}

const userColumns = `id, external_id, first_name, last_name, email, phone_number, country, city, ` +
	`password_hash, role, is_verified, email_verification_otp, email_verification_expires, ` +
	`reset_password_otp, reset_password_expires, created_at, updated_at`

func (r *userRepository) Save(ctx context.Context, user *domain.User) error {
	hash := user.PasswordHash
	plain, staged := user.PendingPassword()
	if staged {
		hashed, err := auth.HashPassword(plain, r.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hash = hashed
	}
	if hash == "" {
		return errors.New("user has no password")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	var err error
	if user.ID == "" {
		err = r.insert(ctx, user, hash)
	} else {
		err = r.update(ctx, user, hash)
	}
	if err != nil {
		return mapWriteError(err)
	}

	if staged {
		user.ApplyPasswordHash(hash)
	}
	return nil
}

func (r *userRepository) insert(ctx context.Context, user *domain.User, hash string) error {
	const query = `
        INSERT INTO users (first_name, last_name, email, phone_number, country, city, password_hash,
            role, is_verified, email_verification_otp, email_verification_expires,
            reset_password_otp, reset_password_expires)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, external_id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PhoneNumber,
		user.Country,
		user.City,
		hash,
		user.Role,
		user.IsVerified,
		user.EmailVerificationOTP,
		user.EmailVerificationExpires,
		user.ResetPasswordOTP,
		user.ResetPasswordExpires,
	).Scan(&user.ID, &user.ExternalID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) update(ctx context.Context, user *domain.User, hash string) error {
	const query = `
        UPDATE users SET first_name=$1, last_name=$2, email=$3, phone_number=$4, country=$5,
            city=$6, password_hash=$7, role=$8, is_verified=$9, email_verification_otp=$10,
            email_verification_expires=$11, reset_password_otp=$12, reset_password_expires=$13,
            updated_at=NOW()
        WHERE id=$14
        RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PhoneNumber,
		user.Country,
		user.City,
		hash,
		user.Role,
		user.IsVerified,
		user.EmailVerificationOTP,
		user.EmailVerificationExpires,
		user.ResetPasswordOTP,
		user.ResetPasswordExpires,
		user.ID,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.getOne(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.getOne(ctx, query, email)
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role=$1 ORDER BY external_id`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgCode(err, pgInvalidTextRepresent) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PhoneNumber,
		&user.Country,
		&user.City,
		&user.PasswordHash,
		&user.Role,
		&user.IsVerified,
		&user.EmailVerificationOTP,
		&user.EmailVerificationExpires,
		&user.ResetPasswordOTP,
		&user.ResetPasswordExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == usersEmailUniqueKeyName {
		return apperrors.ErrDuplicateUser
	}
	return err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
