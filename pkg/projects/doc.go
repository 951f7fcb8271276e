// Package projects manages projects and their memberships. A project
// has at most one lead and any number of members; deleting a project
// cascades to its memberships, documents and versions.
package projects
