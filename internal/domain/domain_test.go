package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckGuarantors(t *testing.T) {
	full := Guarantor{Name: "Amina", Phone: "+254700000001", Address: "12 Market road"}

	arg := ApplyLoanParams{Guarantor1: full, Guarantor2: full}
	require.NoError(t, arg.CheckGuarantors())

	arg.Guarantor2.Phone = "  "
	arg.Guarantor1.Name = ""

	err := arg.CheckGuarantors()
	require.ErrorIs(t, err, ErrIncompleteGuarantorInfo)

	var gerr *GuarantorError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, []string{"guarantor1_name", "guarantor2_phone"}, gerr.Missing)
}

func TestLoanTransitions(t *testing.T) {
	require.True(t, LoanPendingApproval.CanTransitionTo(LoanApproved))
	require.True(t, LoanPendingApproval.CanTransitionTo(LoanRejected))
	require.True(t, LoanActive.CanTransitionTo(LoanCompleted))
	require.False(t, LoanApproved.CanTransitionTo(LoanApproved))
	require.False(t, LoanPendingApproval.CanTransitionTo(LoanDisbursed))
	require.False(t, LoanRejected.CanTransitionTo(LoanApproved))
	require.False(t, LoanCompleted.CanTransitionTo(LoanActive))

	require.True(t, SavingsPendingApproval.CanTransitionTo(SavingsActive))
	require.True(t, SavingsActive.CanTransitionTo(SavingsClosed))
	require.False(t, SavingsPendingApproval.CanTransitionTo(SavingsClosed))
	require.False(t, SavingsClosed.CanTransitionTo(SavingsActive))
}

func TestCategoryOf(t *testing.T) {
	testCases := []struct {
		err  error
		want Category
	}{
		{&GuarantorError{Missing: []string{"guarantor2_phone"}}, CategoryField},
		{fmt.Errorf("quote: %w", ErrInvalidDuration), CategoryField},
		{&InsufficientBalanceError{}, CategoryAccount},
		{ErrOverpaymentRejected, CategoryAccount},
		{&TransitionError{Entity: "loan", From: "approved", To: "approved"}, CategoryState},
		{ErrUnauthorized, CategoryAuth},
		{ErrLoanNotFound, CategoryNotFound},
		{ErrLedgerCorrupted, CategoryHalted},
		{errors.New("boom"), CategoryInternal},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.want, CategoryOf(tc.err), tc.err.Error())
	}
}

func TestFrequencyDueDate(t *testing.T) {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	require.Equal(t, start.AddDate(0, 0, 3), Daily.DueDate(start, 3))
	require.Equal(t, start.AddDate(0, 0, 14), Weekly.DueDate(start, 2))
	require.Equal(t, start.AddDate(0, 0, 28), Biweekly.DueDate(start, 2))
	require.Equal(t, start.AddDate(0, 1, 0), Monthly.DueDate(start, 1))

	_, err := ParseFrequency("yearly")
	require.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestRoleRank(t *testing.T) {
	require.Less(t, RoleOfficer.Rank(), RoleManager.Rank())
	require.Less(t, RoleManager.Rank(), RoleDirector.Rank())
	require.Less(t, RoleDirector.Rank(), RoleAdmin.Rank())
	require.Zero(t, Role("intern").Rank())
}
