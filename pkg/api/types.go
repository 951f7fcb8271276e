package api

// CreateProjectRequest is the body for POST /api/v1/projects
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LeadID      string `json:"lead_id"`
}

// UpdateProjectRequest is the body for PUT /api/v1/projects/{id}
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LeadID      string `json:"lead_id"`
}

// AddMemberRequest is the body for POST /api/v1/projects/{id}/members
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// CreateUserRequest is the body for POST /api/v1/users
type CreateUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// UpdateRoleRequest is the body for PUT /api/v1/users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// DownloadResponse carries the signed URL for a version's content
type DownloadResponse struct {
	URL string `json:"url"`
}
