package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/models"
)

// errUserNotFound satisfies both the service and the token contracts for a missing user.
var errUserNotFound = fmt.Errorf("%w: %w", ErrNotFound, auth.ErrUserNotFound)

// dummyHash is compared against when no user matches, so a miss costs the same as a bad password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type RegisterInput struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Username             string `json:"username" validate:"required,min=6,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type LoginInput struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AssignRolesInput struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

// UserService is the credential store: registration, login lookup and role assignment.
type UserService struct {
	db   *gorm.DB
	cost int
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, cost: bcrypt.DefaultCost}
}

// Register creates a user with a hashed password and the default "user" role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	taken, err := s.takenFields(ctx, in)
	if err != nil {
		return nil, err
	}
	if !taken.Empty() {
		return nil, taken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		role, err := defaultRole(tx)
		if err != nil {
			return err
		}
		return tx.Model(user).Association("Roles").Append(role)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, s.duplicateError(ctx, in)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *UserService) takenFields(ctx context.Context, in RegisterInput) (*ValidationError, error) {
	taken := &ValidationError{}
	if err := s.checkTaken(ctx, "username", in.Username, taken); err != nil {
		return nil, err
	}
	if err := s.checkTaken(ctx, "email", in.Email, taken); err != nil {
		return nil, err
	}
	return taken, nil
}

// duplicateError names the field a concurrent registration claimed first. When the
// winning row cannot be seen, both unique fields are reported.
func (s *UserService) duplicateError(ctx context.Context, in RegisterInput) error {
	taken, err := s.takenFields(ctx, in)
	if err != nil || taken.Empty() {
		taken = &ValidationError{}
		taken.Add("username", "The username has already been taken.")
		taken.Add("email", "The email has already been taken.")
	}
	return taken
}

func (s *UserService) checkTaken(ctx context.Context, column, value string, verr *ValidationError) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value).Count(&n).Error; err != nil {
		return fmt.Errorf("check %s uniqueness: %w", column, err)
	}
	if n > 0 {
		verr.Add(column, fmt.Sprintf("The %s has already been taken.", column))
	}
	return nil
}

func defaultRole(tx *gorm.DB) (*models.Role, error) {
	role := &models.Role{Name: models.RoleUser}
	if err := tx.Where(models.Role{Name: models.RoleUser}).FirstOrCreate(role).Error; err != nil {
		return nil, fmt.Errorf("load default role: %w", err)
	}
	return role, nil
}

// Authenticate resolves the login field as an email or a username and checks the password.
// Both a missing user and a wrong password yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, in LoginInput) (*models.User, error) {
	in.Login = strings.TrimSpace(in.Login)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	column := "username"
	if isEmail(in.Login) {
		column = "email"
	}

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Where(column+" = ?", in.Login).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// FindByID loads a user with their roles.
func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Take(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// AssignRoles replaces the user's roles. Unknown role names are a validation failure.
func (s *UserService) AssignRoles(ctx context.Context, userID uint, in AssignRolesInput) (*models.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Take(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var roles []models.Role
		if err := tx.Where("name IN ?", in.Roles).Find(&roles).Error; err != nil {
			return err
		}
		if len(roles) != len(uniqueStrings(in.Roles)) {
			verr := &ValidationError{}
			verr.Add("roles", "The selected roles is invalid.")
			return verr
		}
		return tx.Model(&user).Association("Roles").Replace(roles)
	})
	if err != nil {
		var verr *ValidationError
		if errors.Is(err, ErrNotFound) || errors.As(err, &verr) {
			return nil, err
		}
		return nil, fmt.Errorf("assign roles: %w", err)
	}
	return s.FindByID(ctx, userID)
}

// FindOrCreateByEmail returns the user owning email, creating one with the default role for a
// first external sign-in. The generated password hash matches no password.
func (s *UserService) FindOrCreateByEmail(ctx context.Context, name, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if !isEmail(email) {
		verr := &ValidationError{}
		verr.Add("email", "The email field must be a valid email address.")
		return nil, verr
	}

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load user by email: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = email
	}
	user = models.User{
		Name:     name,
		Username: email,
		Email:    email,
		// bcrypt output never equals "!", so password login is impossible
		PasswordHash: "!",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		role, err := defaultRole(tx)
		if err != nil {
			return err
		}
		return tx.Model(&user).Association("Roles").Append(role)
	})
	if err != nil {
		return nil, fmt.Errorf("create external user: %w", err)
	}
	return s.FindByID(ctx, user.ID)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
