package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/clubpay-backend/internal/dbtest"
)

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	conn := dbtest.Open(t)
	seeded := dbtest.SeedMember(t, conn, "alex@club.org")
	repo := NewRepository(conn)
	ctx := context.Background()

	got, err := repo.FindByEmail(ctx, "  ALEX@Club.org ")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, seeded.ID, got.ID)

	missing, err := repo.FindByEmail(ctx, "nobody@club.org")
	require.NoError(t, err)
	require.Nil(t, missing)

	blank, err := repo.FindByEmail(ctx, "")
	require.NoError(t, err)
	require.Nil(t, blank)
}

func TestSetStripeCustomerIDOnlyFillsEmpty(t *testing.T) {
	conn := dbtest.Open(t)
	member := dbtest.SeedMember(t, conn, "sam@club.org")
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.SetStripeCustomerID(ctx, member.ID, "cus_first"))
	require.NoError(t, repo.SetStripeCustomerID(ctx, member.ID, "cus_second"))

	got, err := repo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	require.Equal(t, "cus_first", *got.StripeCustomerID)
}

func TestListAllAndDependents(t *testing.T) {
	conn := dbtest.Open(t)
	parent := dbtest.SeedMember(t, conn, "parent@club.org")
	dbtest.SeedMember(t, conn, "other@club.org")
	junior := dbtest.SeedDependent(t, conn, parent.ID, "Junior")
	repo := NewRepository(conn)
	ctx := context.Background()

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	deps, err := repo.ListDependents(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, junior.ID, deps[0].ID)

	found, err := repo.FindDependent(ctx, junior.ID)
	require.NoError(t, err)
	require.Equal(t, parent.ID, found.MemberID)
}
