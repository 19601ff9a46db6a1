package topology

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopGraph() *Graph[string] {
	g := NewGraph[string]()
	g.Add("city", "table")
	g.Add("address", "table", "city")
	g.Add("customer", "table", "address")
	g.Add("customers_view", "view", "customer", "external")
	g.Add("user", "table", "address")
	g.Add("users_view", "view", "user")
	return g
}

func assertBefore(t *testing.T, order []string, first, second string) {
	t.Helper()
	i := slices.Index(order, first)
	j := slices.Index(order, second)
	require.NotEqual(t, -1, i, "%s missing from %v", first, order)
	require.NotEqual(t, -1, j, "%s missing from %v", second, order)
	assert.Less(t, i, j, "%s should precede %s in %v", first, second, order)
}

func TestSortShopSchema(t *testing.T) {
	result, err := shopGraph().Sort()
	require.NoError(t, err)

	order := result.Names()
	assert.Len(t, order, 6)
	assertBefore(t, order, "city", "address")
	assertBefore(t, order, "address", "customer")
	assertBefore(t, order, "customer", "customers_view")
	assertBefore(t, order, "address", "user")
	assertBefore(t, order, "user", "users_view")

	assert.Equal(t, []string{"external"}, result.External)
	assert.NotContains(t, order, "external")
}

func TestSortDetectsCycle(t *testing.T) {
	g := shopGraph()
	g.Add("address", "table", "city", "customers_view")

	_, err := g.Sort()
	require.Error(t, err)

	var cycle *CyclicDependencyError
	require.True(t, errors.As(err, &cycle))
	assert.Contains(t, []string{"address", "customer", "customers_view"}, cycle.Node)
	assert.Contains(t, []string{"address", "customer", "customers_view"}, cycle.Dependency)
	assert.Equal(t, cycle.Dependency, cycle.Path[0])
	assert.Equal(t, cycle.Dependency, cycle.Path[len(cycle.Path)-1])
	assert.Contains(t, err.Error(), cycle.Node)
	assert.Contains(t, err.Error(), cycle.Dependency)
}

func TestSortSelfReferenceIsCycle(t *testing.T) {
	g := NewGraph[int]()
	g.Add("employee", 1, "employee")

	_, err := g.Sort()
	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "employee", cycle.Node)
	assert.Equal(t, "employee", cycle.Dependency)
}

func TestSortExternalListedPerReference(t *testing.T) {
	g := NewGraph[int]()
	g.Add("orders", 1, "currency")
	g.Add("invoices", 2, "currency", "orders")
	g.Add("refunds", 3, "ledger")

	result, err := g.Sort()
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "invoices", "refunds"}, result.Names())
	assert.Equal(t, []string{"currency", "currency", "ledger"}, result.External)
	assert.Equal(t, []int{1, 2, 3}, result.Values())
}

func TestSortKeepsInsertionOrderForUnrelatedNodes(t *testing.T) {
	g := NewGraph[int]()
	for i, name := range []string{"zeta", "alpha", "mid", "beta"} {
		g.Add(name, i)
	}

	result, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, result.Names())
}

func TestAddReplacesKeepsPosition(t *testing.T) {
	g := NewGraph[int]()
	g.Add("a", 1)
	g.Add("b", 2)
	g.Add("a", 10, "b")

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"a", "b"}, g.Names())

	result, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, result.Names())
	assert.Equal(t, []int{2, 10}, result.Values())
}

func TestNodeDependenciesResolveLazily(t *testing.T) {
	g := NewGraph[string]()
	orders := g.Add("orders", "table", "customer", "missing")
	assert.Empty(t, orders.Dependencies())

	g.Add("customer", "table")
	deps := orders.Dependencies()
	require.Len(t, deps, 1)
	assert.Equal(t, "customer", deps[0].Name)
	assert.Equal(t, []string{"customer", "missing"}, orders.DependencyNames())

	node, ok := g.Node("customer")
	require.True(t, ok)
	assert.Same(t, deps[0], node)
}

func TestSortRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		size := 2 + rng.Intn(25)
		names := make([]string, size)
		for i := range names {
			names[i] = fmt.Sprintf("t%02d", i)
		}

		// edges only point from higher to lower index, so the graph is acyclic
		deps := make(map[string][]string, size)
		for i := 1; i < size; i++ {
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					deps[names[i]] = append(deps[names[i]], names[j])
				}
			}
		}

		g := NewGraph[int]()
		for _, idx := range rng.Perm(size) {
			g.Add(names[idx], idx, deps[names[idx]]...)
		}

		result, err := g.Sort()
		require.NoError(t, err)

		order := result.Names()
		require.Len(t, order, size)
		assert.ElementsMatch(t, names, order)
		assert.Empty(t, result.External)
		for node, nodeDeps := range deps {
			for _, dep := range nodeDeps {
				assertBefore(t, order, dep, node)
			}
		}
	}
}

func TestSortRandomCycles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		size := 2 + rng.Intn(10)
		g := NewGraph[int]()
		for i := 0; i < size; i++ {
			next := (i + 1) % size
			g.Add(fmt.Sprintf("n%d", i), i, fmt.Sprintf("n%d", next))
		}

		_, err := g.Sort()
		var cycle *CyclicDependencyError
		assert.ErrorAs(t, err, &cycle)
	}
}

func TestSortMapForm(t *testing.T) {
	ordered, external, err := Sort(map[string][]string{
		"users_view":     {"user"},
		"user":           {"address"},
		"customers_view": {"customer", "external"},
		"customer":       {"address"},
		"address":        {"city"},
		"city":           nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"city", "address", "customer", "customers_view", "user", "users_view"}, ordered)
	assert.Equal(t, []string{"external"}, external)

	_, _, err = Sort(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "b", cycle.Node)
	assert.Equal(t, "a", cycle.Dependency)
}
