package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sea021/promptshop-go/internal/auth"
	"github.com/sea021/promptshop-go/internal/domain"
	"github.com/sea021/promptshop-go/internal/store"
	"github.com/sea021/promptshop-go/pkg/logging"
)

type credentialsBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	ID       string `json:"id"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Email == "" || body.Password == "" || body.Username == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     body.Username,
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "username or email already exists")
			return
		}
		logging.Log(logging.Fields{Service: serviceName, Handler: "register", Status: "error", Error: err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Success", "user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "email or password is incorrect")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, body.Password) {
		writeError(w, http.StatusUnauthorized, "email or password is incorrect")
		return
	}

	token, err := s.auth.Issue(*user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   3600,
	})
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"email":    claims.Email,
		"role":     claims.Role,
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListProducts(r.Context())
	if err != nil {
		logging.Log(logging.Fields{Service: serviceName, Handler: "products_list", Status: "error", Error: err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to fetch products")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": products})
}

type productBody struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Name == "" || body.Price < 0 {
		writeError(w, http.StatusBadRequest, "name is required and price must be >= 0")
		return
	}
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        body.Name,
		Price:       body.Price,
		Description: body.Description,
		Category:    body.Category,
		Image:       body.Image,
	}
	if err := s.catalog.CreateProduct(r.Context(), product); err != nil {
		logging.Log(logging.Fields{Service: serviceName, Handler: "products_create", Status: "error", Error: err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	product := domain.Product{
		ID:          body.ID,
		Name:        body.Name,
		Price:       body.Price,
		Description: body.Description,
		Category:    body.Category,
		Image:       body.Image,
	}
	if err := s.catalog.UpdateProduct(r.Context(), product); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.catalog.DeleteProduct(r.Context(), body.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted successfully"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Email == "" || body.Password == "" || body.Username == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	role := domain.Role(body.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     body.Username,
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Success", "user": user})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	hash := ""
	if strings.TrimSpace(body.Password) != "" {
		var err error
		hash, err = auth.HashPassword(body.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
	}
	role := domain.Role(body.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	user := domain.User{
		ID:           body.ID,
		Username:     body.Username,
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.UpdateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "username or email already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Success"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.users.DeleteUser(r.Context(), body.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted successfully"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": orders})
}

// handleMyOrders lists the caller's own orders; the email comes from the
// verified token claims, not from a query parameter.
func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	orders, err := s.orders.ListOrdersByEmail(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.CountUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch counts")
		return
	}
	products, err := s.catalog.CountProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch counts")
		return
	}
	orders, err := s.orders.CountOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch counts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":    users,
		"products": products,
		"orders":   orders,
	})
}
