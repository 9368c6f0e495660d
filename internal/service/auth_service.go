package service

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/repository"
	"cypher_quest_backend/internal/util"
)

type AuthService struct {
	userRepo *repository.UserRepository
	jwt      config.JWTConfig
}

func NewAuthService(userRepo *repository.UserRepository, jwt config.JWTConfig) *AuthService {
	return &AuthService{userRepo: userRepo, jwt: jwt}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	if _, err := s.userRepo.GetByEmail(req.Email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, util.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:      req.Name,
		Email:     req.Email,
		Password:  string(hashed),
		Role:      model.Learner,
		LastLogin: time.Now(),
		LastSeen:  time.Now(),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, util.ErrPermissionDenied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrUserNotFound
	}

	now := time.Now()
	_ = s.userRepo.UpdateFields(user.ID, map[string]interface{}{"last_login": now, "last_seen": now})
	user.LastLogin = now
	return s.issue(user)
}

// Guest 游客通道：免注册直接发放学习账号，进度照常落库。
// 游客邮箱使用保留域名，不会与真实注册冲突
func (s *AuthService) Guest() (*AuthResponse, error) {
	suffix := model.GenerateUUID()[:8]
	hashed, err := bcrypt.GenerateFromPassword([]byte(model.GenerateUUID()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:      fmt.Sprintf("guest-%s", suffix),
		Email:     fmt.Sprintf("guest-%s@guest.invalid", suffix),
		Password:  string(hashed),
		Role:      model.Learner,
		IsGuest:   true,
		LastLogin: time.Now(),
		LastSeen:  time.Now(),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) GetUser(id uint) (*model.User, error) {
	return s.userRepo.GetByID(id)
}

func (s *AuthService) issue(user *model.User) (*AuthResponse, error) {
	token, err := util.GenerateJWT(user, s.jwt.Secret, s.jwt.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}
