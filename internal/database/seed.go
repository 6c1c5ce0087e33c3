package database

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

var (
	CorePermissions = []string{
		"manage users",
		"manage roles",
		"manage permissions",
		"manage content",
		"view reports",
		"system settings",
	}
	BlogPermissions = []string{
		"view blog",
		"edit blog",
		"delete blog",
		"create blog",
	}
)

// SeedRoles creates the permission set and the admin/user roles. It is idempotent.
func SeedRoles(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		all := make([]models.Permission, 0, len(CorePermissions)+len(BlogPermissions))
		blog := make([]models.Permission, 0, len(BlogPermissions))
		for _, name := range append(append([]string{}, CorePermissions...), BlogPermissions...) {
			p := models.Permission{Name: name}
			if err := tx.Where(models.Permission{Name: name}).FirstOrCreate(&p).Error; err != nil {
				return fmt.Errorf("seed permission %q: %w", name, err)
			}
			all = append(all, p)
			for _, b := range BlogPermissions {
				if b == name {
					blog = append(blog, p)
				}
			}
		}

		if err := syncRole(tx, models.RoleAdmin, all); err != nil {
			return err
		}
		return syncRole(tx, models.RoleUser, blog)
	})
}

func syncRole(tx *gorm.DB, name string, perms []models.Permission) error {
	role := models.Role{Name: name}
	if err := tx.Where(models.Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
		return fmt.Errorf("seed role %q: %w", name, err)
	}
	if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
		return fmt.Errorf("sync permissions for role %q: %w", name, err)
	}
	return nil
}

// SeedAdmin makes sure the configured admin account exists and holds the admin role.
// Nothing is created when no admin password is configured.
func SeedAdmin(db *gorm.DB, cfg config.AdminConfig) error {
	if cfg.Password == "" {
		logger.Info("Admin password not configured, skipping admin seed")
		return nil
	}

	var role models.Role
	if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
		return fmt.Errorf("load admin role: %w", err)
	}

	var admin models.User
	err := db.Where("email = ?", cfg.Email).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		admin = models.User{
			Name:         cfg.Name,
			Username:     cfg.Username,
			Email:        cfg.Email,
			PasswordHash: string(hash),
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		logger.Info("Admin user created", "email", admin.Email)
	} else if err != nil {
		return fmt.Errorf("load admin user: %w", err)
	}

	if err := db.Model(&admin).Association("Roles").Append(&role); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	return nil
}
