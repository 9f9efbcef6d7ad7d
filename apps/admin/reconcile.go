package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) reconcile() error {
	created, err := cli.paymentSvc.ReconcileCompletedOrders(context.Background(), time.Time{})
	fmt.Fprintf(cli.out, "%d missing enrollments created\n", created)
	return err
}

func (cli *commandLine) recalc(enrollmentID string) error {
	cert, err := cli.learningSvc.ReconcileProgress(context.Background(), enrollmentID)
	if err != nil {
		return err
	}
	if cert != nil {
		fmt.Fprintf(cli.out, "enrollment %s completed: certificate %s issued\n", enrollmentID, cert.Number)
		return nil
	}
	fmt.Fprintf(cli.out, "enrollment %s reconciled\n", enrollmentID)
	return nil
}
