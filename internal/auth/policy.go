package auth

import (
	"slices"

	"github.com/petermazzocco/go-blog-api/models"
)

// Actor is the authenticated user performing a request, reduced to what authorization needs.
type Actor struct {
	ID    uint
	Roles []string
}

func ActorFromUser(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Roles: u.RoleNames()}
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// Policy decides whether an actor may modify a resource. A nil resource is never modifiable,
// so callers cannot tell "missing" from "not yours".
type Policy struct {
	overrideRole string
}

// NewPolicy returns a policy where overrideRole may modify any post.
func NewPolicy(overrideRole string) *Policy {
	return &Policy{overrideRole: overrideRole}
}

// CanModifyPost allows the author or a holder of the override role.
func (p *Policy) CanModifyPost(actor Actor, post *models.Post) bool {
	if post == nil || actor.ID == 0 {
		return false
	}
	return actor.ID == post.AuthorID || actor.HasRole(p.overrideRole)
}

// CanModifyComment allows only the comment's creator. There is no admin override for comments.
func (p *Policy) CanModifyComment(actor Actor, comment *models.Comment) bool {
	if comment == nil || actor.ID == 0 {
		return false
	}
	return actor.ID == comment.UserID
}
