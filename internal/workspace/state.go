package workspace

import (
	"fmt"

	"github.com/dmitrijs2005/kopfkino/internal/filex"
)

// localState is the client-side file remembering the active project of
// every tenant used on this machine.
type localState struct {
	ActiveProjects map[string]string `json:"activeProjects"`
}

func loadActive(path, tenant string) (string, error) {
	if path == "" {
		return "", nil
	}
	var st localState
	if _, err := filex.ReadJSON(path, &st); err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	return st.ActiveProjects[tenant], nil
}

func saveActive(path, tenant, id string) error {
	if path == "" {
		return nil
	}
	var st localState
	if _, err := filex.ReadJSON(path, &st); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.ActiveProjects == nil {
		st.ActiveProjects = map[string]string{}
	}
	if id == "" {
		delete(st.ActiveProjects, tenant)
	} else {
		st.ActiveProjects[tenant] = id
	}
	if err := filex.WriteJSON(path, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
