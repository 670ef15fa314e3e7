package items

import "context"

// CollectSubtree returns rootID followed by every descendant reachable over
// parent_id. It walks with an explicit stack, so depth is bounded only by
// memory, and it tolerates cycles in corrupted data.
func CollectSubtree(ctx context.Context, repo Repository, rootID string) ([]string, error) {
	seen := map[string]struct{}{rootID: {}}
	out := []string{}
	stack := []string{rootID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, id)

		children, err := repo.ChildIDs(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			stack = append(stack, c)
		}
	}
	return out, nil
}
